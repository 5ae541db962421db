// Package election implements the leader election on top of the coordination service.
//
// Each member creates an ephemeral sequential node under the election path.
// The member with the smallest sequence is the leader.
// Other members watch only the immediately preceding node, so a node removal wakes up a single member.
package election

import (
	"context"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination"
	svcErrors "github.com/keboola/price-tracker/internal/pkg/service/common/errors"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

var ErrClosed = errors.New("elector is closed")

// Listener is notified exactly once per leadership transition.
// Methods are invoked while the elector lock is held, so they must not block.
type Listener interface {
	OnBecomeLeader()
	OnLoseLeadership()
}

// State is a snapshot of the election, see Elector.State.
type State struct {
	// Self is the membership node of the elector, empty if the elector is not a member.
	Self coordination.Node
	// Siblings are sequences of all live members, ascending.
	Siblings []int64
	IsLeader bool
}

type Elector struct {
	config   config
	logger   log.Logger
	client   coordination.Client
	identity string
	listener Listener
	metrics  *metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	lock        sync.Mutex
	state       State
	leader      bool
	joined      bool
	closed      bool
	reconciling bool
	// wantJoin is set by the Join, background re-joins are enabled only after it
	wantJoin bool
	// generation invalidates watches of previous evaluations
	generation uint64

	// memberSession is the session which owns the membership node
	memberSession string
}

type metrics struct {
	transitions metric.Int64Counter
	isLeader    metric.Int64UpDownCounter
}

// Connect establishes a coordination session, the elector is not a member until the Join is called.
func Connect(ctx context.Context, connector coordination.Connector, identity string, listener Listener, logger log.Logger, opts ...Option) (*Elector, error) {
	cfg := newConfig(opts)
	logger = logger.WithComponent("election").With(attribute.String("node.id", identity))

	connectCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout)
	defer cancel()

	startTime := time.Now()
	client, err := connector.Connect(connectCtx, identity)
	if err != nil {
		return nil, svcErrors.NewConnectionError(errors.PrefixError(err, "cannot connect to the coordination service"))
	}

	e := newElector(cfg, client, identity, listener, logger)
	logger.With(attribute.String("session.id", client.SessionID())).WithDuration(time.Since(startTime)).Info(ctx, `connected, session "<session.id>"`)
	return e, nil
}

func newElector(cfg config, client coordination.Client, identity string, listener Listener, logger log.Logger) *Elector {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Elector{
		config:   cfg,
		logger:   logger,
		client:   client,
		identity: identity,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
		wg:       &sync.WaitGroup{},
		metrics: &metrics{
			transitions: telemetry.Counter(cfg.meter, "tracker.election.transitions", "Leadership transitions.", ""),
			isLeader:    telemetry.UpDownCounter(cfg.meter, "tracker.election.leader", "1 if the node is the leader.", ""),
		},
	}
	client.OnSessionEvent(e.onSessionEvent)
	return e
}

// Join creates the membership node and evaluates the leadership.
// Join is idempotent, a joined elector returns nil.
func (e *Elector) Join(ctx context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.joined {
		return nil
	}
	e.wantJoin = true
	err := e.join(ctx)
	if err != nil {
		if e.joined {
			// The node exists, the evaluation is retried in the background
			e.startReconcile()
		} else {
			e.wantJoin = false
		}
	}
	return err
}

// IsLeader returns true if the elector holds the leadership.
func (e *Elector) IsLeader() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.state.IsLeader
}

// State returns a copy of the current election state.
func (e *Elector) State() State {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := e.state
	out.Siblings = slices.Clone(e.state.Siblings)
	return out
}

// Close gives up the leadership, removes the membership node and closes the session.
func (e *Elector) Close(ctx context.Context) error {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return nil
	}
	e.closed = true
	e.generation++
	e.setLeader(ctx, false)
	self := e.state.Self
	e.joined = false
	e.state = State{}
	e.lock.Unlock()

	// Stop background re-joins
	e.cancel()
	e.wg.Wait()

	errs := errors.NewMultiError()
	if self.Path != "" {
		deleteCtx, cancel := context.WithTimeout(ctx, e.config.opTimeout)
		err := e.client.Delete(deleteCtx, self.Path)
		cancel()
		if err != nil && !errors.Is(err, coordination.ErrNoNode) {
			// The node is removed with the session anyway
			e.logger.Warnf(ctx, `cannot delete membership node "%s": %s`, self.Path, err)
		}
	}
	if err := e.client.Close(); err != nil {
		errs.Append(errors.PrefixError(err, "cannot close coordination client"))
	}

	e.logger.Info(ctx, "closed")
	return errs.ErrorOrNil()
}

// join must be called with the lock held.
func (e *Elector) join(ctx context.Context) error {
	if err := coordination.EnsurePath(ctx, e.client, e.config.path); err != nil {
		return err
	}

	node, err := e.client.CreateNode(ctx, path.Join(e.config.path, e.config.nodePrefix), e.identity, coordination.ModeEphemeralSequential)
	if err != nil {
		return errors.PrefixError(err, "cannot create membership node")
	}

	e.joined = true
	e.memberSession = e.client.SessionID()
	e.state = State{Self: node}
	e.logger.With(attribute.String("election.node", node.Name), attribute.Int64("election.sequence", node.Sequence)).Info(ctx, `joined as "<election.node>"`)
	return e.evaluate(ctx)
}

// evaluate re-reads the membership set and updates the leadership, it must be called with the lock held.
// If the predecessor disappears between the listing and the watch registration, the set is listed again.
// The number of iterations is bounded by the number of members in the first listing.
func (e *Elector) evaluate(ctx context.Context) error {
	e.generation++
	generation := e.generation
	self := e.state.Self

	bound := -1
	for attempt := 0; bound < 0 || attempt <= bound; attempt++ {
		members, err := e.members(ctx)
		if err != nil {
			return err
		}
		if bound < 0 {
			bound = len(members)
		}

		index := slices.IndexFunc(members, func(n coordination.Node) bool {
			return n.Path == self.Path
		})
		if index < 0 {
			e.membershipLost(ctx)
			return errors.Errorf(`membership node "%s" disappeared`, self.Path)
		}

		siblings := make([]int64, len(members))
		for i, n := range members {
			siblings[i] = n.Sequence
		}

		// Leader watches own node, to detect an external removal
		watched := self
		if index > 0 {
			watched = members[index-1]
		}

		stat, err := e.client.Exists(ctx, watched.Path, func(coordination.Event) {
			e.onWatch(generation)
		})
		if err != nil {
			return errors.PrefixErrorf(err, `cannot watch node "%s"`, watched.Path)
		}
		if stat == nil {
			// The watched node disappeared in the meantime, list again
			continue
		}

		e.state = State{Self: self, Siblings: siblings, IsLeader: e.leader}
		e.setLeader(ctx, index == 0)
		if index > 0 {
			e.logger.Debugf(ctx, `watching predecessor "%s"`, watched.Name)
		}
		return nil
	}

	return errors.Errorf("leadership evaluation did not converge in %d iterations", bound+1)
}

func (e *Elector) members(ctx context.Context) ([]coordination.Node, error) {
	children, err := e.client.Children(ctx, e.config.path)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot list members")
	}
	members := children[:0]
	for _, n := range children {
		if strings.HasPrefix(n.Name, e.config.nodePrefix) {
			members = append(members, n)
		}
	}
	// Strictly numeric order, never by identity
	coordination.SortBySequence(members)
	return members, nil
}

// setLeader invokes the listener on a transition, it must be called with the lock held.
func (e *Elector) setLeader(ctx context.Context, v bool) {
	if e.leader == v {
		return
	}
	e.leader = v
	e.state.IsLeader = v
	e.metrics.transitions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("leader", v)))
	if v {
		e.metrics.isLeader.Add(ctx, 1)
		e.logger.Info(ctx, "became the leader")
		e.listener.OnBecomeLeader()
	} else {
		e.metrics.isLeader.Add(ctx, -1)
		e.logger.Info(ctx, "lost the leadership")
		e.listener.OnLoseLeadership()
	}
}

// membershipLost forgets the membership node and gives up the leadership, it must be called with the lock held.
func (e *Elector) membershipLost(ctx context.Context) {
	e.generation++
	e.setLeader(ctx, false)
	e.joined = false
	e.state = State{}
	e.startReconcile()
}

func (e *Elector) onWatch(generation uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed || !e.joined || generation != e.generation {
		// Stale watch
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.config.opTimeout)
	defer cancel()
	if err := e.evaluate(ctx); err != nil {
		e.logger.Warnf(ctx, "cannot evaluate leadership: %s", err)
		e.startReconcile()
	}
}

func (e *Elector) onSessionEvent(event coordination.SessionEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return
	}

	logger := e.logger.With(attribute.String("session.id", event.SessionID))
	switch event.State {
	case coordination.SessionExpired:
		if e.joined && e.memberSession != event.SessionID {
			// The membership has been already re-created in a newer session
			return
		}
		logger.Warn(e.ctx, `session "<session.id>" expired`)
		e.generation++
		e.setLeader(e.ctx, false)
		e.joined = false
		e.state = State{}
	case coordination.SessionReconnected:
		if !e.wantJoin {
			// Not a member yet
			return
		}
		logger.Info(e.ctx, `session "<session.id>" re-established, re-joining`)
		e.startReconcile()
	}
}

// startReconcile re-joins or re-evaluates the election in the background, with an exponential backoff.
// Only one reconciliation runs at a time, it must be called with the lock held.
func (e *Elector) startReconcile() {
	if e.reconciling || e.closed || !e.wantJoin {
		return
	}
	e.reconciling = true

	b := newRejoinBackoff()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := backoff.RetryNotify(
			func() error {
				e.lock.Lock()
				defer e.lock.Unlock()
				if e.closed || !e.wantJoin {
					e.reconciling = false
					return nil
				}

				ctx, cancel := context.WithTimeout(e.ctx, e.config.opTimeout)
				defer cancel()

				var err error
				if e.joined {
					err = e.evaluate(ctx)
				} else {
					err = e.join(ctx)
				}
				if err == nil {
					e.reconciling = false
				}
				return err
			},
			backoff.WithContext(b, e.ctx),
			func(err error, delay time.Duration) {
				e.logger.Warnf(e.ctx, "cannot join the election, retry in %s: %s", delay, err)
			},
		)
		if err != nil {
			// Context cancelled by the Close
			e.lock.Lock()
			e.reconciling = false
			e.lock.Unlock()
		}
	}()
}

func newRejoinBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
