package directory

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failure reported by the directory service. Code carries the
// service's own error code (e.g. "Request_ResourceNotFound") when present.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("directory: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("directory: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a directory not-found failure.
func IsNotFound(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.StatusCode == http.StatusNotFound || de.Code == "Request_ResourceNotFound"
	}
	return false
}
