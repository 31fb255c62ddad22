package election

import (
	"errors"
	"fmt"
)

// ProtocolError is returned when an operation would take the election state
// machine through a transition it doesn't allow.
type ProtocolError struct {
	Round int64
	From  Phase
	To    Phase
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("round %d: illegal transition from %s to %s", e.Round, e.From, e.To)
}

// IsProtocol returns true if err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var perr ProtocolError
	return errors.As(err, &perr)
}
