package election

// Phase is the stage of an election round.
type Phase int

const (
	// None means no election is running.
	None Phase = iota
	// Announce means we are collecting the stakes of the validators taking
	// part in the round.
	Announce
	// AnnounceGrace means a quorum of stakes was collected, and we wait a
	// little longer for latecomers before drawing the winner.
	AnnounceGrace
	// Elect means we drew a winner and are collecting the results of the
	// other validators.
	Elect
	// ElectGrace means a quorum of results was collected, and we wait a
	// little longer before ratifying.
	ElectGrace
	// Ratify is the short-lived phase during which results are compared.
	Ratify
)

func (p Phase) String() string {
	switch p {
	case None:
		return "None"
	case Announce:
		return "Announce"
	case AnnounceGrace:
		return "AnnounceGrace"
	case Elect:
		return "Elect"
	case ElectGrace:
		return "ElectGrace"
	case Ratify:
		return "Ratify"
	default:
		return "Unknown"
	}
}

// transitions lists the phases reachable from every phase. Any phase can go
// back to None when its round is abandoned.
var transitions = map[Phase][]Phase{
	None:          {Announce},
	Announce:      {AnnounceGrace, None},
	AnnounceGrace: {Elect, None},
	Elect:         {ElectGrace, None},
	ElectGrace:    {Ratify, None},
	Ratify:        {None},
}

// CanTransition returns true if the state machine may go from one phase to
// the other.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
