package election

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination"
	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination/inmemory"
	svcErrors "github.com/keboola/price-tracker/internal/pkg/service/common/errors"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type testListener struct {
	became *atomic.Int64
	lost   *atomic.Int64
	// leaders is shared by all listeners of a test
	leaders    *atomic.Int64
	maxLeaders *atomic.Int64
}

func newTestListener(leaders, maxLeaders *atomic.Int64) *testListener {
	return &testListener{became: atomic.NewInt64(0), lost: atomic.NewInt64(0), leaders: leaders, maxLeaders: maxLeaders}
}

func (l *testListener) OnBecomeLeader() {
	l.became.Inc()
	if v := l.leaders.Inc(); v > l.maxLeaders.Load() {
		l.maxLeaders.Store(v)
	}
}

func (l *testListener) OnLoseLeadership() {
	l.lost.Inc()
	l.leaders.Dec()
}

// testConnector keeps created clients, so a test can expire their sessions.
type testConnector struct {
	server  *inmemory.Server
	lock    sync.Mutex
	clients map[string]*inmemory.Client
}

func (c *testConnector) Connect(ctx context.Context, identity string) (coordination.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := c.server.NewClient()
	c.lock.Lock()
	defer c.lock.Unlock()
	c.clients[identity] = client
	return client, nil
}

func (c *testConnector) client(identity string) *inmemory.Client {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.clients[identity]
}

type cluster struct {
	t          *testing.T
	server     *inmemory.Server
	connector  *testConnector
	leaders    *atomic.Int64
	maxLeaders *atomic.Int64
	electors   map[string]*Elector
	listeners  map[string]*testListener
}

func newCluster(t *testing.T) *cluster {
	t.Helper()
	server := inmemory.NewServer()
	return &cluster{
		t:          t,
		server:     server,
		connector:  &testConnector{server: server, clients: make(map[string]*inmemory.Client)},
		leaders:    atomic.NewInt64(0),
		maxLeaders: atomic.NewInt64(0),
		electors:   make(map[string]*Elector),
		listeners:  make(map[string]*testListener),
	}
}

func (c *cluster) join(identity string, opts ...Option) *Elector {
	c.t.Helper()
	ctx := context.Background()
	listener := newTestListener(c.leaders, c.maxLeaders)
	e, err := Connect(ctx, c.connector, identity, listener, log.NewNopLogger(), opts...)
	require.NoError(c.t, err)
	require.NoError(c.t, e.Join(ctx))
	// Idempotent
	require.NoError(c.t, e.Join(ctx))
	c.electors[identity] = e
	c.listeners[identity] = listener
	c.t.Cleanup(func() {
		_ = e.Close(context.Background())
	})
	return e
}

func (c *cluster) leaderIDs() (out []string) {
	for id, e := range c.electors {
		if e.IsLeader() {
			out = append(out, id)
		}
	}
	return out
}

func TestElector_SmallestSequenceWins(t *testing.T) {
	t.Parallel()

	c := newCluster(t)
	ids := []string{"node-a", "node-b", "node-c", "node-d", "node-e"}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	for _, id := range ids {
		c.join(id)
	}

	// The first joined node has the smallest sequence
	first := ids[0]
	assert.Equal(t, []string{first}, c.leaderIDs())

	minSequence := int64(-1)
	minID := ""
	for id, e := range c.electors {
		state := e.State()
		if minSequence < 0 || state.Self.Sequence < minSequence {
			minSequence = state.Self.Sequence
			minID = id
		}
	}
	assert.Equal(t, first, minID)
	// The last joined node has seen all members
	lastState := c.electors[ids[len(ids)-1]].State()
	assert.Len(t, lastState.Siblings, len(ids))
	assert.Equal(t, minSequence, lastState.Siblings[0])
	assert.Equal(t, int64(1), c.listeners[first].became.Load())
	assert.Equal(t, int64(1), c.maxLeaders.Load())
}

func TestElector_LeaderClose_Failover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newCluster(t)
	first := c.join("node-1")
	c.join("node-2")
	c.join("node-3")
	assert.Equal(t, []string{"node-1"}, c.leaderIDs())

	require.NoError(t, first.Close(ctx))
	require.NoError(t, first.Close(ctx))
	assert.ErrorIs(t, first.Join(ctx), ErrClosed)
	assert.False(t, first.IsLeader())
	assert.Equal(t, int64(1), c.listeners["node-1"].lost.Load())

	assert.EventuallyWithT(t, func(collect *assert.CollectT) {
		assert.Equal(collect, []string{"node-2"}, c.leaderIDs())
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), c.listeners["node-2"].became.Load())
	assert.Equal(t, int64(0), c.listeners["node-3"].became.Load())
	assert.Equal(t, int64(1), c.maxLeaders.Load())
	assert.Len(t, c.electors["node-2"].State().Siblings, 2)
}

func TestElector_MiddleNodeClose_NoLeadershipChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newCluster(t)
	c.join("node-1")
	middle := c.join("node-2")
	last := c.join("node-3")
	lastSequence := last.State().Self.Sequence

	require.NoError(t, middle.Close(ctx))

	// node-3 re-evaluates and watches node-1
	assert.EventuallyWithT(t, func(collect *assert.CollectT) {
		assert.Len(collect, last.State().Siblings, 2)
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"node-1"}, c.leaderIDs())
	assert.Equal(t, lastSequence, last.State().Self.Sequence)
	assert.Equal(t, int64(0), c.listeners["node-3"].became.Load())
	assert.Equal(t, int64(0), c.listeners["node-2"].lost.Load())
}

func TestElector_SessionExpired(t *testing.T) {
	t.Parallel()

	c := newCluster(t)
	leader := c.join("node-1")
	c.join("node-2")
	oldSelf := leader.State().Self

	c.server.ExpireSession(c.connector.client("node-1"))

	// The expired node loses the leadership and joins again, with a new greater sequence
	assert.EventuallyWithT(t, func(collect *assert.CollectT) {
		assert.Equal(collect, []string{"node-2"}, c.leaderIDs())
		state := leader.State()
		assert.NotEmpty(collect, state.Self.Path)
		assert.Greater(collect, state.Self.Sequence, oldSelf.Sequence)
		assert.Len(collect, state.Siblings, 2)
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), c.listeners["node-1"].became.Load())
	assert.Equal(t, int64(1), c.listeners["node-1"].lost.Load())
	assert.Equal(t, int64(1), c.listeners["node-2"].became.Load())
	assert.False(t, leader.IsLeader())
}

func TestElector_SessionRenewedBeforeJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newCluster(t)
	listener := newTestListener(c.leaders, c.maxLeaders)
	e, err := Connect(ctx, c.connector, "node-1", listener, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = e.Close(context.Background())
	})

	// A renewed session of a connected elector must not create the membership
	client := c.connector.client("node-1")
	oldSession := client.SessionID()
	c.server.ExpireSession(client)
	assert.Eventually(t, func() bool {
		return client.SessionID() != oldSession
	}, 5*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		return e.IsLeader() || e.State().Self.Path != ""
	}, 200*time.Millisecond, 10*time.Millisecond)
	for _, nodePath := range c.server.Nodes() {
		assert.NotContains(t, nodePath, DefaultNodePrefix)
	}
	assert.Equal(t, int64(0), listener.became.Load())

	// Join works as usual
	require.NoError(t, e.Join(ctx))
	assert.True(t, e.IsLeader())
	assert.Equal(t, int64(1), listener.became.Load())
}

func TestElector_SessionExpired_Outage(t *testing.T) {
	t.Parallel()

	c := newCluster(t)
	e := c.join("node-1")

	c.server.SetUnavailable(true)
	c.server.ExpireSession(c.connector.client("node-1"))
	assert.Eventually(t, func() bool {
		return !e.IsLeader()
	}, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, e.State().Self.Path)

	c.server.SetUnavailable(false)
	assert.Eventually(t, func() bool {
		return e.IsLeader()
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), c.listeners["node-1"].became.Load())
	assert.Equal(t, int64(1), c.listeners["node-1"].lost.Load())
}

func TestElector_MembershipNodeDeletedExternally(t *testing.T) {
	t.Parallel()

	c := newCluster(t)
	leader := c.join("node-1")
	c.join("node-2")

	require.NoError(t, c.server.Delete(leader.State().Self.Path))

	assert.EventuallyWithT(t, func(collect *assert.CollectT) {
		assert.Equal(collect, []string{"node-2"}, c.leaderIDs())
		assert.Len(collect, leader.State().Siblings, 2)
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), c.listeners["node-1"].lost.Load())
}

func TestElector_ManyMembers_AtMostOneLeader(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newCluster(t)
	for i := 0; i < 10; i++ {
		c.join(fmt.Sprintf("node-%02d", i))
	}

	// Close members in a random order, each time exactly one leader remains
	ids := make([]string, 0, len(c.electors))
	for id := range c.electors {
		ids = append(ids, id)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	for _, id := range ids[:len(ids)-1] {
		require.NoError(t, c.electors[id].Close(ctx))
		delete(c.electors, id)
		assert.EventuallyWithT(t, func(collect *assert.CollectT) {
			assert.Len(collect, c.leaderIDs(), 1)
		}, 5*time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, int64(1), c.maxLeaders.Load())
}

func TestElector_CustomPath_Metrics(t *testing.T) {
	t.Parallel()

	c := newCluster(t)
	tel := telemetry.NewForTest(t)
	e := c.join("node-1", WithPath("/custom/path"), WithNodePrefix("member-"), WithOpTimeout(time.Second), WithMeterProvider(tel.MeterProvider()))
	assert.True(t, e.IsLeader())
	assert.Equal(t, "/custom/path/member-0000000001", e.State().Self.Path)

	require.NoError(t, e.Close(context.Background()))
	assert.Equal(t, int64(1), tel.Int64Sum(t, "tracker.election.transitions", attribute.Bool("leader", true)))
	assert.Equal(t, int64(1), tel.Int64Sum(t, "tracker.election.transitions", attribute.Bool("leader", false)))
	assert.Equal(t, int64(0), tel.Int64Sum(t, "tracker.election.leader"))
	assert.Equal(t, []string{"/", "/custom", "/custom/path"}, c.server.Nodes())
}

func TestConnect_Unavailable(t *testing.T) {
	t.Parallel()

	server := inmemory.NewServer()
	server.SetUnavailable(true)
	_, err := Connect(context.Background(), inmemory.NewConnector(server), "node-1", newTestListener(atomic.NewInt64(0), atomic.NewInt64(0)), log.NewNopLogger())
	require.Error(t, err)
	var connErr svcErrors.ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.ErrorIs(t, err, coordination.ErrUnavailable)
}
