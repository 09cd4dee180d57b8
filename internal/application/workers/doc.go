// Package workers implements the inference worker.
//
// The pool runs exactly one worker goroutine, so generations are processed
// strictly one at a time in the order the worker accepts them. Callers block
// in Do until their task has run. A task whose caller went away before the
// worker picked it up is skipped; a task that has started always runs to
// completion.
//
// The health monitor tracks worker status and records metrics.
package workers
