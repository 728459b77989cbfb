package domain

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_State(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewSession("room1", "T1", "alice", now)
	assert.Equal(t, StateAwaitingJoiner, s.State())

	s.Initiator.Description = "v=0 offer"
	assert.Equal(t, StateAwaitingJoiner, s.State(), "offer before join keeps waiting for the joiner")

	s.Joiner = &Peer{Name: "bob", JoinedAt: now}
	assert.Equal(t, StateAwaitingAnswer, s.State())

	s.Joiner.Description = "v=0 answer"
	assert.Equal(t, StateActive, s.State())

	s.Closed = true
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := NewSession("room1", "T1", "alice", time.Now())
	s.Initiator.Candidates = []ICECandidate{{Candidate: "c1"}}

	cp := s.Clone()
	cp.Initiator.Candidates[0].Candidate = "changed"
	cp.Initiator.Candidates = append(cp.Initiator.Candidates, ICECandidate{Candidate: "c2"})
	cp.Initiator.Name = "mallory"

	assert.Equal(t, "c1", s.Initiator.Candidates[0].Candidate)
	assert.Len(t, s.Initiator.Candidates, 1)
	assert.Equal(t, "alice", s.Initiator.Name)
	assert.Nil(t, cp.Joiner)
}

func TestSession_InfoHidesSecrets(t *testing.T) {
	s := NewSession("room1", "T1", "alice", time.Now())
	s.Initiator.Description = "v=0"
	s.Initiator.Candidates = []ICECandidate{{Candidate: "c1"}, {Candidate: "c2"}}

	info := s.Info()
	assert.Equal(t, StateAwaitingJoiner, info.State)
	assert.Equal(t, 2, info.InitiatorCandidates)
	assert.Zero(t, info.JoinerCandidates)

	text, err := (StateAwaitingAnswer).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "awaiting_answer", string(text))
}

func TestRole(t *testing.T) {
	assert.Equal(t, SlotOffer, RoleInitiator.Slot())
	assert.Equal(t, SlotAnswer, RoleJoiner.Slot())
	assert.Equal(t, RoleJoiner, RoleInitiator.Peer())
	assert.Equal(t, RoleInitiator, RoleJoiner.Peer())
	assert.Equal(t, http.StatusCreated, RoleInitiator.Status())
	assert.Equal(t, http.StatusOK, RoleJoiner.Status())

	r, err := RoleForSlot("answer")
	require.NoError(t, err)
	assert.Equal(t, RoleJoiner, r)

	_, err = RoleForSlot("pranswer")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestValidation(t *testing.T) {
	testCases := []struct {
		name  string
		check func() error
		ok    bool
	}{
		{name: "plain id", check: func() error { return ValidateSessionID("room1") }, ok: true},
		{name: "empty id", check: func() error { return ValidateSessionID("") }},
		{name: "id with slash", check: func() error { return ValidateSessionID("a/b") }},
		{name: "id with control char", check: func() error { return ValidateSessionID("a\nb") }},
		{name: "long id", check: func() error { return ValidateSessionID(SessionID(strings.Repeat("x", MaxSessionIDLen+1))) }},
		{name: "token", check: func() error { return ValidateToken("T1") }, ok: true},
		{name: "empty token", check: func() error { return ValidateToken("") }},
		{name: "long token", check: func() error { return ValidateToken(strings.Repeat("x", MaxTokenLen+1)) }},
		{name: "empty name", check: func() error { return ValidateName("") }, ok: true},
		{name: "long name", check: func() error { return ValidateName(strings.Repeat("x", MaxNameLen+1)) }},
		{name: "name with newline", check: func() error { return ValidateName("eve\nadmin") }},
		{name: "unicode name", check: func() error { return ValidateName("Zoë 🚀") }, ok: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}
