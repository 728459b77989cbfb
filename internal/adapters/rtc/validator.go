package rtc

import (
	"fmt"
	"strings"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
)

// Validator rejects SDP bodies and ICE candidates that a browser could not
// have produced. The coordinator never interprets them beyond that.
type Validator struct{}

func (Validator) ValidateDescription(role domain.Role, body string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(body)); err != nil {
		return fmt.Errorf("%w: malformed %s: %v", domain.ErrInvalidArgument, role.Slot(), err)
	}
	return nil
}

func (Validator) ValidateCandidate(c domain.ICECandidate) error {
	raw := strings.TrimPrefix(c.Candidate, "candidate:")
	if _, err := ice.UnmarshalCandidate(raw); err != nil {
		return fmt.Errorf("%w: malformed ICE candidate %q: %v", domain.ErrInvalidArgument, c.Candidate, err)
	}
	return nil
}
