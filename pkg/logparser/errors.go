package logparser

import (
	"fmt"
)

// MalformedLogError is returned when a non-empty line is not a valid
// log record. No records are returned alongside it.
type MalformedLogError struct {
	Line int
	Err  error
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("malformed log at line %d: %v", e.Line, e.Err)
}

func (e *MalformedLogError) Unwrap() error {
	return e.Err
}

// FileReadError is returned when a local log file cannot be read.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("reading log file %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// FetchError is returned when a remote log cannot be fetched. Status is
// zero when no response was received.
type FetchError struct {
	URL     string
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf(
			"fetching %s: status %d: %s", e.URL, e.Status, e.Message,
		)
	}

	return fmt.Sprintf("fetching %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
