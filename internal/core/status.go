package core

// Status is the tri-state execution result reported by graphs, nodes and actions,
// plus None (never started) and Error (structural fault).
type Status int

const (
	StatusNone Status = iota
	StatusRunning
	StatusSuccess
	StatusFailure
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Inverted swaps Success and Failure. Every other status is returned unchanged.
func (s Status) Inverted() Status {
	switch s {
	case StatusSuccess:
		return StatusFailure
	case StatusFailure:
		return StatusSuccess
	default:
		return s
	}
}

// IsFinished returns true for Success, Failure and Error.
func (s Status) IsFinished() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusError
}

// StatusFlags is a set of statuses, used to gate transitions and status perceptions.
type StatusFlags uint8

const (
	FlagRunning StatusFlags = 1 << iota
	FlagSuccess
	FlagFailure
	FlagError

	FlagNone     StatusFlags = 0
	FlagFinished             = FlagSuccess | FlagFailure
	FlagActive               = FlagRunning | FlagSuccess | FlagFailure
	FlagAll                  = FlagActive | FlagError
)

// FlagOf returns the flag matching a single status. StatusNone maps to FlagNone.
func FlagOf(s Status) StatusFlags {
	switch s {
	case StatusRunning:
		return FlagRunning
	case StatusSuccess:
		return FlagSuccess
	case StatusFailure:
		return FlagFailure
	case StatusError:
		return FlagError
	default:
		return FlagNone
	}
}

// Match returns true if s is contained in the set.
func (f StatusFlags) Match(s Status) bool {
	return f&FlagOf(s) != 0
}
