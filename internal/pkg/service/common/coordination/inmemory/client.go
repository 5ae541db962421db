package inmemory

import (
	"context"

	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination"
)

// Client is a coordination.Client of the in-memory Server.
// The state of the client is protected by the server lock.
type Client struct {
	server          *Server
	dispatcher      *coordination.Dispatcher
	sessionID       string
	sessionHandlers []func(event coordination.SessionEvent)
	expired         bool
	closed          bool
}

func (c *Client) SessionID() string {
	c.server.lock.Lock()
	defer c.server.lock.Unlock()
	return c.sessionID
}

func (c *Client) CreateNode(ctx context.Context, path string, data string, mode coordination.Mode) (coordination.Node, error) {
	if err := ctx.Err(); err != nil {
		return coordination.Node{}, err
	}
	c.server.lock.Lock()
	defer c.server.lock.Unlock()
	if err := c.server.check(c); err != nil {
		return coordination.Node{}, err
	}
	return c.server.createNode(c, path, data, mode)
}

func (c *Client) Exists(ctx context.Context, path string, watch coordination.WatchFunc) (*coordination.Stat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.server.lock.Lock()
	defer c.server.lock.Unlock()
	if err := c.server.check(c); err != nil {
		return nil, err
	}
	return c.server.exists(c, path, watch), nil
}

func (c *Client) Children(ctx context.Context, path string) ([]coordination.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.server.lock.Lock()
	defer c.server.lock.Unlock()
	if err := c.server.check(c); err != nil {
		return nil, err
	}
	return c.server.children(path)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.server.lock.Lock()
	defer c.server.lock.Unlock()
	if err := c.server.check(c); err != nil {
		return err
	}
	return c.server.deleteNode(path)
}

func (c *Client) OnSessionEvent(fn func(event coordination.SessionEvent)) {
	c.server.lock.Lock()
	defer c.server.lock.Unlock()
	c.sessionHandlers = append(c.sessionHandlers, fn)
}

// Close ends the session, ephemeral nodes of the client are deleted.
func (c *Client) Close() error {
	c.server.lock.Lock()
	defer c.server.lock.Unlock()
	if c.closed {
		return nil
	}
	c.server.removeClientNodes(c)
	c.server.removeClientWatches(c)
	c.closed = true
	delete(c.server.clients, c)
	c.dispatcher.Close()
	return nil
}

// dispatchSessionEvent must be called with the server lock held.
func (c *Client) dispatchSessionEvent(event coordination.SessionEvent) {
	for _, fn := range c.sessionHandlers {
		c.dispatcher.Dispatch(func() {
			fn(event)
		})
	}
}
