// Package coordination defines the client of a distributed coordination service.
//
// The service provides a hierarchical namespace of nodes.
// An ephemeral node is owned by a session and it is removed when the session ends.
// A sequential node gets a monotonically increasing sequence number.
// Watch and session callbacks of one client are delivered serially, never concurrently.
package coordination

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type Mode int

const (
	ModePersistent Mode = iota
	ModeEphemeralSequential
)

type EventType int

const (
	EventNodeDeleted EventType = iota
	EventNodeChanged
)

type SessionState int

const (
	// SessionExpired means that all ephemeral nodes of the session are gone.
	SessionExpired SessionState = iota
	// SessionReconnected means that a new session has been established after an expiration.
	SessionReconnected
)

var (
	ErrNodeExists     = errors.New("node already exists")
	ErrNoNode         = errors.New("node does not exist")
	ErrNotEmpty       = errors.New("node has children")
	ErrSessionExpired = errors.New("session expired")
	ErrClosed         = errors.New("client is closed")
	ErrUnavailable    = errors.New("coordination service is unavailable")
)

// Node is a node in the hierarchical namespace.
type Node struct {
	Path     string
	Name     string
	Sequence int64
	Data     string
}

// Stat describes an existing node.
type Stat struct {
	Sequence int64
	Version  int64
}

type Event struct {
	Type EventType
	Path string
}

type SessionEvent struct {
	State     SessionState
	SessionID string
}

// WatchFunc is a one-shot callback, it is invoked at most once.
type WatchFunc func(event Event)

type Client interface {
	SessionID() string
	// CreateNode creates the node, a sequence suffix is appended to the path in the ModeEphemeralSequential.
	CreateNode(ctx context.Context, path string, data string, mode Mode) (Node, error)
	// Exists returns nil if the node doesn't exist, otherwise the watch is registered for the next node change.
	Exists(ctx context.Context, path string, watch WatchFunc) (*Stat, error)
	// Children returns direct children of the path.
	Children(ctx context.Context, path string) ([]Node, error)
	Delete(ctx context.Context, path string) error
	OnSessionEvent(fn func(event SessionEvent))
	Close() error
}

type Connector interface {
	Connect(ctx context.Context, identity string) (Client, error)
}

// EnsurePath creates all missing nodes of the path as persistent nodes.
// The ErrNodeExists is ignored, the path may be created by a concurrent client.
func EnsurePath(ctx context.Context, client Client, nodePath string) error {
	nodePath = path.Clean("/" + nodePath)
	if nodePath == "/" {
		return nil
	}

	current := ""
	for _, part := range strings.Split(strings.TrimPrefix(nodePath, "/"), "/") {
		current += "/" + part
		stat, err := client.Exists(ctx, current, nil)
		if err != nil {
			return errors.PrefixErrorf(err, `cannot check path "%s"`, current)
		}
		if stat != nil {
			continue
		}
		if _, err := client.CreateNode(ctx, current, "", ModePersistent); err != nil && !errors.Is(err, ErrNodeExists) {
			return errors.PrefixErrorf(err, `cannot create path "%s"`, current)
		}
	}
	return nil
}

// SortBySequence sorts nodes by the sequence number, ascending.
func SortBySequence(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Sequence < nodes[j].Sequence
	})
}
