package attendance

import "time"

// Outcome tags the terminal state of one reconcile call.
type Outcome int

const (
	Marked Outcome = iota
	AlreadyMarked
	NotApproved
	NotFound
	Busy
	TransientError
)

var outcomeNames = [...]string{
	Marked:         "marked",
	AlreadyMarked:  "already_marked",
	NotApproved:    "not_approved",
	NotFound:       "not_found",
	Busy:           "busy",
	TransientError: "transient_error",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Result is returned to the presentation layer. Message is only set for TransientError.
type Result struct {
	Outcome      Outcome
	Identifier   string
	EventTitle   string
	MarkedAt     time.Time
	Message      string
	Registration *Registration
	UsedFallback bool
}

// OK reports whether the registration ends up Present after the call.
func (r Result) OK() bool {
	return r.Outcome == Marked || r.Outcome == AlreadyMarked
}

func transient(id, msg string) Result {
	return Result{Outcome: TransientError, Identifier: id, Message: msg}
}
