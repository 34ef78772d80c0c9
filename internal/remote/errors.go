package remote

import "fmt"

// RemoteError is an error reported by the service itself, either through an
// "error" field in the body or a non-2xx status. Message is kept verbatim.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return e.Message
}
