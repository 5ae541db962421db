// Package etcdcoord implements the coordination.Client on top of etcd.
//
// A session is an etcd lease kept alive by the etcdop.ResistantSession.
// An ephemeral node is a key attached to the lease, the sequence of a node is the create revision of the key.
// Keys are the node paths, so the namespace is flat, a persistent parent node is only a marker.
package etcdcoord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination"
	"github.com/keboola/price-tracker/internal/pkg/service/common/etcdclient"
	"github.com/keboola/price-tracker/internal/pkg/service/common/etcdop"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const DefaultSessionTTLSeconds = 15

type Connector struct {
	config     etcdclient.Config
	logger     log.Logger
	ttlSeconds int
	options    []etcdclient.Option
}

type Client struct {
	logger     log.Logger
	client     *etcd.Client
	dispatcher *coordination.Dispatcher
	ctx        context.Context
	cancel     context.CancelFunc
	wg         *sync.WaitGroup
	counter    *atomic.Int64

	lock            sync.Mutex
	session         *concurrency.Session
	expiryNotified  bool
	closed          bool
	sessionHandlers []func(event coordination.SessionEvent)
}

func NewConnector(cfg etcdclient.Config, logger log.Logger, ttlSeconds int, opts ...etcdclient.Option) *Connector {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultSessionTTLSeconds
	}
	return &Connector{config: cfg, logger: logger, ttlSeconds: ttlSeconds, options: opts}
}

// Connect creates the etcd client and waits for the first session.
func (c *Connector) Connect(ctx context.Context, identity string) (coordination.Client, error) {
	logger := c.logger.With(attribute.String("node.id", identity))
	opts := append([]etcdclient.Option{etcdclient.WithLogger(logger)}, c.options...)
	client, err := etcdclient.New(ctx, c.config, opts...)
	if err != nil {
		return nil, err
	}
	out, err := NewClient(ctx, client, logger, c.ttlSeconds)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return out, nil
}

// NewClient wraps the etcd client, the etcd client is closed by the Client.Close.
func NewClient(ctx context.Context, client *etcd.Client, logger log.Logger, ttlSeconds int) (*Client, error) {
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Client{
		logger:     logger.WithComponent("coordination"),
		client:     client,
		dispatcher: coordination.NewDispatcher(),
		ctx:        sessionCtx,
		cancel:     cancel,
		wg:         &sync.WaitGroup{},
		counter:    atomic.NewInt64(0),
	}

	errCh := etcdop.ResistantSession(sessionCtx, c.wg, logger, client, ttlSeconds, c.onSession)
	select {
	case err := <-errCh:
		if err != nil {
			cancel()
			c.wg.Wait()
			c.dispatcher.Close()
			return nil, errors.PrefixError(err, "cannot create coordination session")
		}
	case <-ctx.Done():
		cancel()
		c.wg.Wait()
		c.dispatcher.Close()
		return nil, ctx.Err()
	}

	return c, nil
}

func (c *Client) SessionID() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.session == nil {
		return ""
	}
	return leaseID(c.session)
}

func (c *Client) CreateNode(ctx context.Context, path string, data string, mode coordination.Mode) (coordination.Node, error) {
	session, err := c.currentSession()
	if err != nil {
		return coordination.Node{}, err
	}

	key := normalize(path)
	var opts []etcd.OpOption
	switch mode {
	case coordination.ModePersistent:
	case coordination.ModeEphemeralSequential:
		// Sequence is the create revision, the suffix only makes the key unique
		key = fmt.Sprintf("%s%s-%d", key, leaseID(session), c.counter.Inc())
		opts = append(opts, etcd.WithLease(session.Lease()))
	default:
		return coordination.Node{}, errors.Errorf("unexpected mode %d", mode)
	}

	resp, err := c.client.Txn(ctx).
		If(etcd.Compare(etcd.CreateRevision(key), "=", 0)).
		Then(etcd.OpPut(key, data, opts...)).
		Commit()
	if err != nil {
		return coordination.Node{}, err
	}
	if !resp.Succeeded {
		return coordination.Node{}, coordination.ErrNodeExists
	}

	return coordination.Node{Path: key, Name: baseName(key), Sequence: resp.Header.Revision, Data: data}, nil
}

func (c *Client) Exists(ctx context.Context, path string, watch coordination.WatchFunc) (*coordination.Stat, error) {
	if _, err := c.currentSession(); err != nil {
		return nil, err
	}

	key := normalize(path)
	resp, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	kv := resp.Kvs[0]
	if watch != nil {
		c.watchOnce(key, resp.Header.Revision+1, watch)
	}
	return &coordination.Stat{Sequence: kv.CreateRevision, Version: kv.ModRevision}, nil
}

func (c *Client) Children(ctx context.Context, path string) ([]coordination.Node, error) {
	if _, err := c.currentSession(); err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(normalize(path), "/") + "/"
	resp, err := c.client.Get(ctx, prefix, etcd.WithPrefix(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, err
	}

	var out []coordination.Node
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		// Direct children only
		if strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			continue
		}
		out = append(out, coordination.Node{Path: key, Name: baseName(key), Sequence: kv.CreateRevision, Data: string(kv.Value)})
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	if _, err := c.currentSession(); err != nil {
		return err
	}

	key := normalize(path)
	children, err := c.client.Get(ctx, strings.TrimSuffix(key, "/")+"/", etcd.WithPrefix(), etcd.WithCountOnly())
	if err != nil {
		return err
	}
	if children.Count > 0 {
		return coordination.ErrNotEmpty
	}

	resp, err := c.client.Delete(ctx, key)
	if err != nil {
		return err
	}
	if resp.Deleted == 0 {
		return coordination.ErrNoNode
	}
	return nil
}

func (c *Client) OnSessionEvent(fn func(event coordination.SessionEvent)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.sessionHandlers = append(c.sessionHandlers, fn)
}

// Close revokes the session lease, so ephemeral nodes are deleted, and closes the etcd client.
func (c *Client) Close() error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}
	c.closed = true
	c.lock.Unlock()

	startTime := time.Now()
	c.cancel()
	c.wg.Wait()
	c.dispatcher.Close()
	err := c.client.Close()
	c.logger.WithDuration(time.Since(startTime)).Info(c.ctx, "closed coordination client")
	return err
}

func (c *Client) currentSession() (*concurrency.Session, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	switch {
	case c.closed:
		return nil, coordination.ErrClosed
	case c.session == nil || c.expiryNotified:
		return nil, coordination.ErrSessionExpired
	default:
		return c.session, nil
	}
}

func (c *Client) onSession(session *concurrency.Session) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	reconnected := c.session != nil
	if reconnected && !c.expiryNotified {
		c.dispatchSessionEvent(coordination.SessionEvent{State: coordination.SessionExpired, SessionID: leaseID(c.session)})
	}

	c.session = session
	c.expiryNotified = false
	if reconnected {
		c.logger.With(attribute.String("session.id", leaseID(session))).Info(c.ctx, `coordination session "<session.id>" re-established`)
		c.dispatchSessionEvent(coordination.SessionEvent{State: coordination.SessionReconnected, SessionID: leaseID(session)})
	}

	// Notify the expiration as soon as the keep-alive stops
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.ctx.Done():
		case <-session.Done():
			c.lock.Lock()
			defer c.lock.Unlock()
			if c.session == session && !c.expiryNotified && !c.closed {
				c.expiryNotified = true
				c.logger.With(attribute.String("session.id", leaseID(session))).Warn(c.ctx, `coordination session "<session.id>" expired`)
				c.dispatchSessionEvent(coordination.SessionEvent{State: coordination.SessionExpired, SessionID: leaseID(session)})
			}
		}
	}()

	return nil
}

// watchOnce invokes the watch on the first change of the key since the revision.
func (c *Client) watchOnce(key string, revision int64, fn coordination.WatchFunc) {
	ctx, cancel := context.WithCancel(c.ctx)
	ch := c.client.Watch(ctx, key, etcd.WithRev(revision))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		for resp := range ch {
			if err := resp.Err(); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				// Compaction or cancellation, the watcher re-reads the state
				c.logger.Warnf(ctx, `watch of "%s" failed: %s`, key, err)
				c.dispatch(fn, coordination.Event{Type: coordination.EventNodeChanged, Path: key})
				return
			}
			for _, event := range resp.Events {
				eventType := coordination.EventNodeChanged
				if event.Type == etcd.EventTypeDelete {
					eventType = coordination.EventNodeDeleted
				}
				c.dispatch(fn, coordination.Event{Type: eventType, Path: key})
				return
			}
		}
	}()
}

func (c *Client) dispatch(fn coordination.WatchFunc, event coordination.Event) {
	if c.ctx.Err() != nil {
		return
	}
	c.dispatcher.Dispatch(func() {
		fn(event)
	})
}

// dispatchSessionEvent must be called with the lock held.
func (c *Client) dispatchSessionEvent(event coordination.SessionEvent) {
	for _, fn := range c.sessionHandlers {
		c.dispatcher.Dispatch(func() {
			fn(event)
		})
	}
}

func leaseID(session *concurrency.Session) string {
	return fmt.Sprintf("%016x", int64(session.Lease()))
}

func normalize(path string) string {
	return "/" + strings.Trim(strings.TrimSpace(path), "/")
}

func baseName(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}
