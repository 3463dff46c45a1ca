package gns3

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("AE3GIS_URL environment variable is not set")

// Kind classifies why a topology request failed.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindTransport      Kind = "transport"
	KindUpstreamStatus Kind = "upstream_status"
	KindUpstreamParse  Kind = "upstream_parse"
)

// Error is the single error type returned by Client. Status and Body are only
// set for KindUpstreamStatus.
type Error struct {
	Kind   Kind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUpstreamStatus:
		return fmt.Sprintf("GNS3 API error: %d %s", e.Status, e.Body)
	case KindUpstreamParse:
		return fmt.Sprintf("GNS3 API returned invalid JSON: %v", e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "GNS3 API request failed"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindTransport for errors not produced by
// this package.
func KindOf(err error) Kind {
	var gnsErr *Error
	if errors.As(err, &gnsErr) {
		return gnsErr.Kind
	}
	return KindTransport
}
