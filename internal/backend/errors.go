package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// UploadError is a non-success upload response. Detail is the backend's
// "detail" message, shown to the user verbatim.
type UploadError struct {
	Status int
	Detail string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (status %d): %s", e.Status, e.Detail)
}

func newUploadError(resp *http.Response) *UploadError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &UploadError{Status: resp.StatusCode, Detail: uploadDetail(body)}
}

// uploadDetail extracts "detail" from an error body. The backend sends a
// string, or a list of validation errors which is passed through as JSON.
func uploadDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 || string(payload.Detail) == "null" {
		return uploadFailedDetail
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return uploadFailedDetail
		}
		return s
	}
	return string(payload.Detail)
}

// HTTPError is a non-200 answer from a history endpoint.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.Status)
	}
	return fmt.Sprintf("HTTP error! status: %d - %s", e.Status, e.Body)
}

func (e *HTTPError) NotFound() bool {
	return e.Status == http.StatusNotFound
}
