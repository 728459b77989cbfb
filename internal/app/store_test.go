package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rendezvous/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStore_RoleOrdering(t *testing.T) {
	st := NewStore(nil, newFakeClock())

	adm, err := st.CreateOrJoin("room1", "T1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInitiator, adm.Role)
	assert.Equal(t, domain.StateAwaitingJoiner, adm.Session.State())

	adm, err = st.CreateOrJoin("room1", "", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleJoiner, adm.Role)
	assert.Equal(t, domain.StateAwaitingAnswer, adm.Session.State())
	assert.Equal(t, "bob", adm.Session.Joiner.Name)

	_, err = st.CreateOrJoin("room1", "T1", "carol")
	assert.ErrorIs(t, err, domain.ErrSessionFull)
	assert.Equal(t, 1, st.Len())
}

func TestStore_CreateValidation(t *testing.T) {
	st := NewStore(nil, nil)

	_, err := st.CreateOrJoin("room1", "", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "creator must supply a token")
	_, err = st.CreateOrJoin("", "T1", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Zero(t, st.Len())
}

func TestStore_JoinWithWrongToken(t *testing.T) {
	st := NewStore(nil, nil)
	_, err := st.CreateOrJoin("room1", "T1", "alice")
	require.NoError(t, err)

	_, err = st.CreateOrJoin("room1", "nope", "bob")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	s, err := st.Get("room1")
	require.NoError(t, err)
	assert.Nil(t, s.Joiner, "rejected join must not take the slot")

	adm, err := st.CreateOrJoin("room1", "T1", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleJoiner, adm.Role)
}

func TestStore_TokenGuardsMutation(t *testing.T) {
	st := NewStore(nil, nil)
	_, err := st.CreateOrJoin("room1", "T1", "alice")
	require.NoError(t, err)

	called := false
	err = st.Update("room1", "T2", func(*domain.Session) error { called = true; return nil })
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, called)

	_, err = st.Delete("room1", "T2")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	s, err := st.Delete("room1", "T1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, s.State())

	_, err = st.Get("room1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = st.Delete("room1", "T1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_GetReturnsSnapshot(t *testing.T) {
	st := NewStore(nil, nil)
	_, err := st.CreateOrJoin("room1", "T1", "alice")
	require.NoError(t, err)

	s, err := st.Get("room1")
	require.NoError(t, err)
	s.Initiator.Name = "mallory"

	err = st.View("room1", "T1", func(s *domain.Session) error {
		assert.Equal(t, "alice", s.Initiator.Name)
		s.Initiator.Name = "eve"
		return nil
	})
	require.NoError(t, err)

	s, err = st.Get("room1")
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Initiator.Name)
}

func TestStore_RecreateAfterDelete(t *testing.T) {
	st := NewStore(nil, nil)
	_, err := st.CreateOrJoin("room1", "T1", "alice")
	require.NoError(t, err)
	_, err = st.Delete("room1", "T1")
	require.NoError(t, err)

	adm, err := st.CreateOrJoin("room1", "T9", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInitiator, adm.Role)
	assert.Equal(t, "T9", adm.Session.Token)
}

func TestStore_ConcurrentCreateAndJoin(t *testing.T) {
	for round := 0; round < 50; round++ {
		st := NewStore(nil, nil)
		const callers = 16

		var wg sync.WaitGroup
		roles := make(chan domain.Role, callers)
		errs := make(chan error, callers)
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				adm, err := st.CreateOrJoin("room1", "T1", fmt.Sprintf("peer-%d", i))
				if err != nil {
					errs <- err
					return
				}
				roles <- adm.Role
			}(i)
		}
		close(start)
		wg.Wait()
		close(roles)
		close(errs)

		counts := map[domain.Role]int{}
		for r := range roles {
			counts[r]++
		}
		assert.Equal(t, 1, counts[domain.RoleInitiator])
		assert.Equal(t, 1, counts[domain.RoleJoiner])
		full := 0
		for err := range errs {
			assert.ErrorIs(t, err, domain.ErrSessionFull)
			full++
		}
		assert.Equal(t, callers-2, full)
	}
}

func TestStore_ConcurrentJoinDeleteDoesNotDeadlock(t *testing.T) {
	st := NewStore(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = st.CreateOrJoin("room1", "T1", "x")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = st.Delete("room1", "T1")
				st.Sweep(time.Now(), time.Hour, 0)
			}
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("store operations deadlocked")
	}
}

func TestStore_Sweep(t *testing.T) {
	clk := newFakeClock()
	st := NewStore(nil, clk)
	_, err := st.CreateOrJoin("idle", "T1", "alice")
	require.NoError(t, err)
	_, err = st.CreateOrJoin("busy", "T2", "bob")
	require.NoError(t, err)

	clk.Advance(20 * time.Second)
	require.NoError(t, st.Update("busy", "T2", func(s *domain.Session) error {
		s.LastKeepAliveAt = clk.Now()
		return nil
	}))
	clk.Advance(20 * time.Second)

	expired := st.Sweep(clk.Now(), 35*time.Second, 0)
	require.Len(t, expired, 1)
	assert.Equal(t, domain.SessionID("idle"), expired[0].ID)
	assert.Equal(t, domain.StateClosed, expired[0].State())

	_, err = st.Get("idle")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = st.Get("busy")
	assert.NoError(t, err)

	// Age cap applies even to sessions that keep sending keep-alives.
	clk.Advance(time.Hour)
	expired = st.Sweep(clk.Now(), 0, 30*time.Minute)
	require.Len(t, expired, 1)
	assert.Zero(t, st.Len())
}

func TestStore_ListAndOpen(t *testing.T) {
	st := NewStore(nil, nil)
	_, err := st.CreateOrJoin("open", "T1", "alice")
	require.NoError(t, err)
	_, err = st.CreateOrJoin("full", "T2", "bob")
	require.NoError(t, err)
	_, err = st.CreateOrJoin("full", "", "carol")
	require.NoError(t, err)

	assert.Len(t, st.List(), 2)
	assert.Equal(t, []domain.SessionID{"open"}, st.Open())
}

func TestFirstComePolicy(t *testing.T) {
	p := FirstComePolicy{}
	role, err := p.Assign(nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInitiator, role)

	s := domain.NewSession("room1", "T1", "alice", time.Now())
	role, err = p.Assign(s)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleJoiner, role)

	s.Joiner = &domain.Peer{Name: "bob"}
	_, err = p.Assign(s)
	assert.ErrorIs(t, err, domain.ErrSessionFull)
}
