// Package errors provides the structured error type used across codescope.
//
// Every error carries a Kind from the fixed taxonomy below. Retry logic and
// job control dispatch on Kind, never on message text:
//
//   - KindTransient: network I/O, remote 5xx, timeouts. Retried with backoff.
//   - KindValidation: dimension mismatch, schema conflict, bad config. Fatal
//     to the job.
//   - KindNotFound: project or file missing. Skipped.
//   - KindPermission: read denied, watcher cannot attach. Logged and skipped.
//   - KindPressure: memory emergency. Pauses the pipeline, never fails it.
//   - KindConflict: concurrent index job on the same project. Rejected.
//   - KindInternal: everything else.
package errors

// Kind classifies an error for retry and job-control decisions.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not-found"
	KindPermission Kind = "permission"
	KindPressure   Kind = "pressure"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// retryable reports whether errors of this kind may be retried.
func (k Kind) retryable() bool {
	return k == KindTransient
}
