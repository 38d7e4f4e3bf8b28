package domain

// CallState is the state of the single call session of a process.
type CallState int

const (
	StateIdle CallState = iota
	StateWaitingForPartner
	StateOutgoingRinging
	StateIncomingRinging
	StateActive
	StateEnded
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForPartner:
		return "waiting_for_partner"
	case StateOutgoingRinging:
		return "outgoing_ringing"
	case StateIncomingRinging:
		return "incoming_ringing"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Ringing reports whether a negotiation is pending in either direction.
func (s CallState) Ringing() bool {
	return s == StateOutgoingRinging || s == StateIncomingRinging
}

// InCall reports whether the state has a call to hang up or reject.
func (s CallState) InCall() bool {
	return s == StateActive || s.Ringing()
}

// CanTransition reports whether from -> to is an edge of the call state
// machine. Falling back to WaitingForPartner and shutting down are always
// allowed.
func CanTransition(from, to CallState) bool {
	if from == StateEnded {
		return false
	}
	switch to {
	case StateWaitingForPartner, StateEnded:
		return true
	case StateOutgoingRinging, StateIncomingRinging:
		// OutgoingRinging -> IncomingRinging is the glare yield.
		return from == StateWaitingForPartner || (from == StateOutgoingRinging && to == StateIncomingRinging)
	case StateActive:
		return from.Ringing() || from == StateActive
	}
	return false
}
