package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// HandlerFunc executes one command.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Worker dispatches requests to registered handlers. Each request runs in
// its own goroutine, so responses complete in any order.
type Worker struct {
	log       logrus.FieldLogger
	requests  <-chan Request
	responses chan<- Response

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewWorker creates a Worker over the given channel ends.
func NewWorker(
	log logrus.FieldLogger,
	requests <-chan Request,
	responses chan<- Response,
) *Worker {
	return &Worker{
		log:       log.WithField("component", "worker"),
		requests:  requests,
		responses: responses,
		handlers:  make(map[string]HandlerFunc, 16),
	}
}

// Handle registers the handler of a command.
func (w *Worker) Handle(command string, fn HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[command] = fn
}

// Serve dispatches requests until ctx is done or the request channel
// closes, then waits for in-flight handlers.
func (w *Worker) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-w.requests:
			if !ok {
				return nil
			}

			wg.Add(1)

			go func() {
				defer wg.Done()

				w.dispatch(ctx, req)
			}()
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, req Request) {
	start := time.Now()
	resp := Response{ID: req.ID}

	w.mu.RLock()
	fn, ok := w.handlers[req.Command]
	w.mu.RUnlock()

	if ok {
		resp.Result, resp.Err = w.call(ctx, fn, req)
	} else {
		resp.Err = &UnknownCommandError{Command: req.Command}
	}

	log := w.log.WithFields(logrus.Fields{
		"id":       req.ID,
		"command":  req.Command,
		"duration": time.Since(start).String(),
	})

	if resp.Err != nil {
		log.WithError(resp.Err).Debug("Request failed")
	} else {
		log.Debug("Request complete")
	}

	select {
	case w.responses <- resp:
	case <-ctx.Done():
	}
}

func (w *Worker) call(
	ctx context.Context, fn HandlerFunc, req Request,
) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %q panicked: %v", req.Command, r)
		}
	}()

	return fn(ctx, req.Args)
}

// Decode copies request args into a typed struct using its mapstructure
// tags. Values that already have the target type are assigned as is.
func Decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("building args decoder: %w", err)
	}

	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decoding args: %w", err)
	}

	return nil
}
