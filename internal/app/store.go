package app

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.Session
}

// Store is a threadsafe in-memory session store. The map lock guards
// membership; each entry's mutex linearizes operations on one session.
type Store struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
	policy   RolePolicy
	clock    core.Clock
}

func NewStore(policy RolePolicy, clock core.Clock) *Store {
	if policy == nil {
		policy = FirstComePolicy{}
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Store{
		sessions: make(map[domain.SessionID]*sessionEntry),
		policy:   policy,
		clock:    clock,
	}
}

var _ core.SessionStore = (*Store)(nil)

func tokenMatches(s *domain.Session, token string) bool {
	return subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) == 1
}

func (st *Store) CreateOrJoin(id domain.SessionID, token, name string) (domain.Admission, error) {
	if err := domain.ValidateSessionID(id); err != nil {
		return domain.Admission{}, err
	}
	if err := domain.ValidateName(name); err != nil {
		return domain.Admission{}, err
	}

	for {
		st.mu.Lock()
		entry, ok := st.sessions[id]
		if !ok {
			adm, err := st.createLocked(id, token, name)
			st.mu.Unlock()
			return adm, err
		}
		st.mu.Unlock()

		// Entry locks are always taken without holding the map lock. A closed
		// entry has already left the map, so the lookup is retried.
		entry.mu.Lock()
		if entry.session.Closed {
			entry.mu.Unlock()
			continue
		}
		adm, err := st.joinLocked(entry.session, token, name)
		entry.mu.Unlock()
		return adm, err
	}
}

func (st *Store) createLocked(id domain.SessionID, token, name string) (domain.Admission, error) {
	if err := domain.ValidateToken(token); err != nil {
		return domain.Admission{}, err
	}
	role, err := st.policy.Assign(nil)
	if err != nil {
		return domain.Admission{}, err
	}
	s := domain.NewSession(id, token, name, st.clock.Now())
	st.sessions[id] = &sessionEntry{session: s}
	log.Info().Str("module", "app.store").Str("session", string(id)).Str("role", role.String()).Msg("session created")
	return domain.Admission{Role: role, Session: s.Clone()}, nil
}

func (st *Store) joinLocked(s *domain.Session, token, name string) (domain.Admission, error) {
	role, err := st.policy.Assign(s)
	if err != nil {
		log.Warn().Str("module", "app.store").Str("session", string(s.ID)).Err(err).Msg("join rejected")
		return domain.Admission{}, err
	}
	if token != "" && !tokenMatches(s, token) {
		return domain.Admission{}, domain.ErrUnauthorized
	}
	now := st.clock.Now()
	s.Joiner = &domain.Peer{Name: name, JoinedAt: now}
	s.LastKeepAliveAt = now
	log.Info().Str("module", "app.store").Str("session", string(s.ID)).Str("role", role.String()).Msg("session joined")
	return domain.Admission{Role: role, Session: s.Clone()}, nil
}

// lock returns the live entry locked; the caller must unlock it.
func (st *Store) lock(id domain.SessionID) (*sessionEntry, error) {
	st.mu.RLock()
	entry, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	entry.mu.Lock()
	if entry.session.Closed {
		entry.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return entry, nil
}

func (st *Store) Get(id domain.SessionID) (*domain.Session, error) {
	entry, err := st.lock(id)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

func (st *Store) Update(id domain.SessionID, token string, fn func(*domain.Session) error) error {
	entry, err := st.lock(id)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()
	if !tokenMatches(entry.session, token) {
		return domain.ErrUnauthorized
	}
	return fn(entry.session)
}

func (st *Store) View(id domain.SessionID, token string, fn func(*domain.Session) error) error {
	return st.Update(id, token, func(s *domain.Session) error {
		return fn(s.Clone())
	})
}

func (st *Store) Delete(id domain.SessionID, token string) (*domain.Session, error) {
	entry, err := st.lock(id)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	if !tokenMatches(entry.session, token) {
		return nil, domain.ErrUnauthorized
	}
	st.removeLocked(entry)
	log.Info().Str("module", "app.store").Str("session", string(id)).Msg("session deleted")
	return entry.session.Clone(), nil
}

// removeLocked drops the entry from the map; the entry lock must be held.
func (st *Store) removeLocked(entry *sessionEntry) {
	entry.session.Closed = true
	st.mu.Lock()
	if cur, ok := st.sessions[entry.session.ID]; ok && cur == entry {
		delete(st.sessions, entry.session.ID)
	}
	st.mu.Unlock()
}

func (st *Store) entries() []*sessionEntry {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*sessionEntry, 0, len(st.sessions))
	for _, e := range st.sessions {
		out = append(out, e)
	}
	return out
}

func (st *Store) Sweep(now time.Time, idle, maxAge time.Duration) []*domain.Session {
	var expired []*domain.Session
	for _, entry := range st.entries() {
		entry.mu.Lock()
		s := entry.session
		stale := !s.Closed && idle > 0 && now.Sub(s.LastKeepAliveAt) > idle
		old := !s.Closed && maxAge > 0 && now.Sub(s.CreatedAt) > maxAge
		if stale || old {
			st.removeLocked(entry)
			expired = append(expired, s.Clone())
		}
		entry.mu.Unlock()
	}
	return expired
}

func (st *Store) List() []domain.Info {
	entries := st.entries()
	out := make([]domain.Info, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		if !entry.session.Closed {
			out = append(out, entry.session.Info())
		}
		entry.mu.Unlock()
	}
	return out
}

func (st *Store) Open() []domain.SessionID {
	var out []domain.SessionID
	for _, entry := range st.entries() {
		entry.mu.Lock()
		if !entry.session.Closed && entry.session.Joiner == nil {
			out = append(out, entry.session.ID)
		}
		entry.mu.Unlock()
	}
	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
