package task

import "errors"

var (
	ErrNoResolvedURL = errors.New("no url has been resolved yet")
	ErrNoActiveTask  = errors.New("no task in flight")
	ErrDeclined      = errors.New("declined by user")
	ErrSuperseded    = errors.New("superseded by a newer task")
)
