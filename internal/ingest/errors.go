package ingest

import (
	"errors"
	"fmt"
)

// ErrAlreadyOpen is returned by Open while another analysis stream is open.
var ErrAlreadyOpen = errors.New("analysis stream already open")

// TransportError is a connect or read failure. The stream is abandoned and
// not retried.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("analysis stream %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError is an explicit error payload sent by the analysis service.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return "analysis error: " + e.Message
}
