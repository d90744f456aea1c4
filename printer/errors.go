package printer

import "fmt"

// JobMalformedError wraps a sliced-file open or parse failure (spec.md §7).
// Recoverable: StartPrint is rejected and the orchestrator remains Idle.
type JobMalformedError struct {
	Path string
	Err  error
}

func (e *JobMalformedError) Error() string {
	return fmt.Sprintf("printer: job %q malformed: %v", e.Path, e.Err)
}

func (e *JobMalformedError) Unwrap() error { return e.Err }

// LayerMissingError means a job's reader returned no layer at an index
// still short of its own declared LayerCount (spec.md §7, "unexpected
// early EOF"): recoverable, treated like a normal end-of-job, but logged
// distinctly so an operator can tell a short read from a clean finish.
type LayerMissingError struct {
	Job   string
	Index int
}

func (e *LayerMissingError) Error() string {
	return fmt.Sprintf("printer: job %q has no layer at index %d before its declared layer count", e.Job, e.Index)
}

// OperatorRejectionError means an Operation was received that is not legal
// for the orchestrator's current State (spec.md §7). Recoverable: state is
// left unchanged and the operation is simply dropped.
type OperatorRejectionError struct {
	Operation string
	State     string
	Reason    string
}

func (e *OperatorRejectionError) Error() string {
	return fmt.Sprintf("printer: rejected %s while %s: %s", e.Operation, e.State, e.Reason)
}
