package domain

import (
	"errors"
	"fmt"
)

// ErrNoSites is returned when a run is started without any site profiles.
var ErrNoSites = errors.New("no site profiles configured")

// FetchError is returned when a URL could not be retrieved, either because
// the transport failed or the server answered with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int // zero for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ReasonTitleNotFound is the ParseError reason when the title selector
// matches nothing.
const ReasonTitleNotFound = "title not found"

// ParseError is returned when a post page lacks a required element.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}
