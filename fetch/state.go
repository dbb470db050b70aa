package fetch

// Phase is the stage of a logical call.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseRetrying
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRetrying:
		return "retrying"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether the phase ends a logical call.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// State is the state of one logical call. Only the constructors below build
// it, so a State always holds exactly the data of its phase.
type State struct {
	phase    Phase
	attempt  int
	failures int
	response *Body
	err      *ErrorValue
}

// Idle is the state before any request was sent.
func Idle() State { return State{phase: PhaseIdle} }

// Pending is the state while attempt n is in flight.
func Pending(attempt int) State {
	return State{phase: PhasePending, attempt: attempt, failures: attempt - 1}
}

// Retrying is the state after attempt n failed and a backoff is pending.
func Retrying(attempt int) State {
	return State{phase: PhaseRetrying, attempt: attempt, failures: attempt}
}

// Succeeded is the terminal state of a call that produced a response.
func Succeeded(body Body, failures int) State {
	return State{phase: PhaseSucceeded, failures: failures, response: &body}
}

// Failed is the terminal state of a call that produced an error.
func Failed(err *ErrorValue, failures int) State {
	return State{phase: PhaseFailed, failures: failures, err: err}
}

// Phase returns the active phase.
func (s State) Phase() Phase { return s.phase }

// Attempt returns the attempt number of a Pending or Retrying state.
func (s State) Attempt() int { return s.attempt }

// Response returns the body of a Succeeded state.
func (s State) Response() *Body { return s.response }

// Err returns the error of a Failed state.
func (s State) Err() *ErrorValue { return s.err }

// IsLoading reports whether a request is in flight or about to be retried.
func (s State) IsLoading() bool {
	return s.phase == PhasePending || s.phase == PhaseRetrying
}

// IsRetrying reports whether a failed attempt is waiting for its retry.
func (s State) IsRetrying() bool { return s.phase == PhaseRetrying }

// RetryCount returns the number of failed attempts so far.
func (s State) RetryCount() int { return s.failures }

// Snapshot is the view of a Getter exposed to consumers.
type Snapshot struct {
	Phase      Phase
	Response   *Body
	Error      *ErrorValue
	IsLoading  bool
	IsRetrying bool
	RetryCount int
}

// Snapshot flattens the state for consumers.
func (s State) Snapshot() Snapshot {
	return Snapshot{
		Phase:      s.phase,
		Response:   s.response,
		Error:      s.err,
		IsLoading:  s.IsLoading(),
		IsRetrying: s.IsRetrying(),
		RetryCount: s.failures,
	}
}
