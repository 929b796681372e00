package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Client issues requests and resolves them as responses arrive.
type Client struct {
	log       logrus.FieldLogger
	requests  chan<- Request
	responses <-chan Response

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Response

	done chan struct{}
	err  error
}

// NewClient creates a Client over the given channel ends. Run must be
// running for calls to resolve.
func NewClient(
	log logrus.FieldLogger,
	requests chan<- Request,
	responses <-chan Response,
) *Client {
	return &Client{
		log:       log.WithField("component", "worker-client"),
		requests:  requests,
		responses: responses,
		pending:   make(map[uint64]chan Response, 16),
		done:      make(chan struct{}),
	}
}

// Run receives responses until ctx is done, the response channel closes,
// or a response arrives for an unknown correlation id. The last case
// returns an *UnknownCorrelationIDError.
func (c *Client) Run(ctx context.Context) error {
	err := c.receive(ctx)

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	close(c.done)

	return err
}

func (c *Client) receive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-c.responses:
			if !ok {
				return ErrClosed
			}

			if err := c.resolve(resp); err != nil {
				c.log.WithError(err).Error("Worker channel out of sync")

				return err
			}
		}
	}
}

// resolve hands a response to its caller and forgets the id, so every
// id resolves at most once.
func (c *Client) resolve(resp Response) error {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()

	if !ok {
		return &UnknownCorrelationIDError{ID: resp.ID}
	}

	// Buffered with room for exactly this response.
	ch <- resp

	return nil
}

// Call sends a command and waits for its response. When ctx is done first
// the call returns and the response is discarded once it arrives.
func (c *Client) Call(
	ctx context.Context, command string, args map[string]any,
) (any, error) {
	id := c.nextID.Add(1)
	ch := make(chan Response, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	select {
	case c.requests <- Request{ID: id, Command: command, Args: args}:
	case <-ctx.Done():
		c.forget(id)

		return nil, ctx.Err()
	case <-c.done:
		c.forget(id)

		return nil, c.closedErr()
	}

	select {
	case resp := <-ch:
		return resp.Result, resp.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedErr()
	}
}

// Pending returns the number of unresolved requests.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// forget drops a request that was never sent.
func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	return ErrClosed
}
