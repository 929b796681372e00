// Package worker provides an asynchronous request/response channel between
// a caller and an isolated worker goroutine. Requests carry a correlation
// id, responses may arrive in any order and are matched by that id only.
package worker

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by calls issued after the client stopped.
var ErrClosed = errors.New("worker channel closed")

// Request is a command sent to the worker.
type Request struct {
	ID      uint64
	Command string
	Args    map[string]any
}

// Response answers the request with the same ID.
type Response struct {
	ID     uint64
	Result any
	Err    error
}

// UnknownCorrelationIDError is returned by Client.Run when a response
// arrives for an id that has no pending request. It is never recovered
// from: the channel is out of sync with its caller.
type UnknownCorrelationIDError struct {
	ID uint64
}

func (e *UnknownCorrelationIDError) Error() string {
	return fmt.Sprintf("unexpected response with correlation id %d", e.ID)
}

// UnknownCommandError is returned for commands with no handler.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Command)
}

// Pipe returns the two directions of a channel with the given buffer.
func Pipe(buffer int) (chan Request, chan Response) {
	return make(chan Request, buffer), make(chan Response, buffer)
}
