// Package inmemory provides an in-process coordination service.
// It is used by tests and by a single process deployment, sessions can be expired on demand.
package inmemory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type Server struct {
	lock        sync.Mutex
	nodes       map[string]*node
	counters    map[string]int64
	clients     map[*Client]bool
	watches     map[string][]watch
	nextSession int64
	unavailable bool
}

type node struct {
	path     string
	data     string
	sequence int64
	version  int64
	owner    *Client
}

type watch struct {
	client *Client
	fn     coordination.WatchFunc
}

type connector struct {
	server *Server
}

func NewServer() *Server {
	return &Server{
		nodes:    map[string]*node{"/": {path: "/"}},
		counters: make(map[string]int64),
		clients:  make(map[*Client]bool),
		watches:  make(map[string][]watch),
	}
}

// NewConnector returns the coordination.Connector of the server.
func NewConnector(server *Server) coordination.Connector {
	return &connector{server: server}
}

func (c *connector) Connect(ctx context.Context, _ string) (coordination.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.server.lock.Lock()
	unavailable := c.server.unavailable
	c.server.lock.Unlock()
	if unavailable {
		return nil, coordination.ErrUnavailable
	}
	return c.server.NewClient(), nil
}

// NewClient creates a client with a new session.
func (s *Server) NewClient() *Client {
	s.lock.Lock()
	defer s.lock.Unlock()
	c := &Client{server: s, dispatcher: coordination.NewDispatcher()}
	c.sessionID = s.newSessionID()
	s.clients[c] = true
	return c
}

// ExpireSession expires the session of the client, all ephemeral nodes of the session are deleted.
// A new session is established immediately, if the server is available.
func (s *Server) ExpireSession(c *Client) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if c.closed || c.expired {
		return
	}
	c.expired = true
	s.removeClientNodes(c)
	s.removeClientWatches(c)
	c.dispatchSessionEvent(coordination.SessionEvent{State: coordination.SessionExpired, SessionID: c.sessionID})
	if !s.unavailable {
		s.renewSession(c)
	}
}

// SetUnavailable simulates an outage, all operations fail with coordination.ErrUnavailable.
// Expired sessions are renewed when the server becomes available again.
func (s *Server) SetUnavailable(v bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.unavailable = v
	if !v {
		for c := range s.clients {
			if c.expired {
				s.renewSession(c)
			}
		}
	}
}

// Delete removes the node as an administrator, it is used to simulate an external intervention.
func (s *Server) Delete(nodePath string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.deleteNode(nodePath)
}

// Nodes returns paths of all nodes, sorted.
func (s *Server) Nodes() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]string, 0, len(s.nodes))
	for p := range s.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Server) newSessionID() string {
	s.nextSession++
	return fmt.Sprintf("%016x", s.nextSession)
}

func (s *Server) renewSession(c *Client) {
	c.expired = false
	c.sessionID = s.newSessionID()
	c.dispatchSessionEvent(coordination.SessionEvent{State: coordination.SessionReconnected, SessionID: c.sessionID})
}

func (s *Server) check(c *Client) error {
	switch {
	case c.closed:
		return coordination.ErrClosed
	case s.unavailable:
		return coordination.ErrUnavailable
	case c.expired:
		return coordination.ErrSessionExpired
	default:
		return nil
	}
}

func (s *Server) createNode(c *Client, nodePath string, data string, mode coordination.Mode) (coordination.Node, error) {
	nodePath = cleanPath(nodePath)
	parent := path.Dir(nodePath)
	if _, found := s.nodes[parent]; !found {
		return coordination.Node{}, coordination.ErrNoNode
	}

	n := &node{path: nodePath, data: data}
	switch mode {
	case coordination.ModePersistent:
		if _, found := s.nodes[nodePath]; found {
			return coordination.Node{}, coordination.ErrNodeExists
		}
		s.counters[parent]++
		n.sequence = s.counters[parent]
	case coordination.ModeEphemeralSequential:
		s.counters[parent]++
		n.sequence = s.counters[parent]
		n.path = fmt.Sprintf("%s%010d", nodePath, n.sequence)
		n.owner = c
	default:
		return coordination.Node{}, errors.Errorf("unexpected mode %d", mode)
	}

	s.nodes[n.path] = n
	return n.toNode(), nil
}

func (s *Server) children(nodePath string) ([]coordination.Node, error) {
	nodePath = cleanPath(nodePath)
	if _, found := s.nodes[nodePath]; !found {
		return nil, coordination.ErrNoNode
	}
	var out []coordination.Node
	for p, n := range s.nodes {
		if p != "/" && path.Dir(p) == nodePath {
			out = append(out, n.toNode())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Server) exists(c *Client, nodePath string, fn coordination.WatchFunc) *coordination.Stat {
	nodePath = cleanPath(nodePath)
	n, found := s.nodes[nodePath]
	if !found {
		return nil
	}
	if fn != nil {
		s.watches[nodePath] = append(s.watches[nodePath], watch{client: c, fn: fn})
	}
	return &coordination.Stat{Sequence: n.sequence, Version: n.version}
}

func (s *Server) deleteNode(nodePath string) error {
	nodePath = cleanPath(nodePath)
	if _, found := s.nodes[nodePath]; !found || nodePath == "/" {
		return coordination.ErrNoNode
	}
	for p := range s.nodes {
		if p != "/" && path.Dir(p) == nodePath {
			return coordination.ErrNotEmpty
		}
	}
	delete(s.nodes, nodePath)
	s.fireWatches(coordination.Event{Type: coordination.EventNodeDeleted, Path: nodePath})
	return nil
}

func (s *Server) removeClientNodes(c *Client) {
	var paths []string
	for p, n := range s.nodes {
		if n.owner == c {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		_ = s.deleteNode(p)
	}
}

func (s *Server) removeClientWatches(c *Client) {
	for p, watches := range s.watches {
		filtered := watches[:0]
		for _, w := range watches {
			if w.client != c {
				filtered = append(filtered, w)
			}
		}
		if len(filtered) == 0 {
			delete(s.watches, p)
		} else {
			s.watches[p] = filtered
		}
	}
}

// fireWatches dispatches one-shot watches of the path.
func (s *Server) fireWatches(event coordination.Event) {
	watches := s.watches[event.Path]
	delete(s.watches, event.Path)
	for _, w := range watches {
		fn := w.fn
		w.client.dispatcher.Dispatch(func() {
			fn(event)
		})
	}
}

func (n *node) toNode() coordination.Node {
	return coordination.Node{Path: n.path, Name: path.Base(n.path), Sequence: n.sequence, Data: n.data}
}

func cleanPath(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}
