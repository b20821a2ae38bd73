package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/ValentinKolb/dGrid/rpc/common"
	"github.com/ValentinKolb/dGrid/rpc/serializer"
	"github.com/ValentinKolb/dGrid/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/sync/errgroup"
)

// MemberID identifies a member of the grid by its endpoint.
type MemberID = string

// Result is the answer of one member. Err is an error the member reported
// for the request, Response is nil in that case.
type Result struct {
	Response *common.Message
	Err      error
}

// --------------------------------------------------------------------------
// Targets
// --------------------------------------------------------------------------

// Target selects the members an invocation is sent to.
type Target struct {
	name    string
	resolve func(ch *InvocationChannel) ([]MemberID, error)
}

func (t Target) String() string { return t.name }

// AllMembers targets every member.
func AllMembers() Target {
	return Target{
		name: "all members",
		resolve: func(ch *InvocationChannel) ([]MemberID, error) {
			return ch.members, nil
		},
	}
}

// MembersOwning targets the owners of the given key ids, each owner once.
func MembersOwning(keyIDs ...string) Target {
	return Target{
		name: fmt.Sprintf("owners of %d keys", len(keyIDs)),
		resolve: func(ch *InvocationChannel) ([]MemberID, error) {
			if len(keyIDs) == 0 {
				return nil, errors.New("no keys given")
			}
			var owners []MemberID
			for _, id := range keyIDs {
				if owner := ch.Owner(id); !slices.Contains(owners, owner) {
					owners = append(owners, owner)
				}
			}
			return owners, nil
		},
	}
}

// SingleNamedService targets one member. An empty name selects the first
// member.
func SingleNamedService(member MemberID) Target {
	return Target{
		name: "service at " + member,
		resolve: func(ch *InvocationChannel) ([]MemberID, error) {
			if member == "" {
				return ch.members[:1], nil
			}
			if _, ok := ch.transports[member]; !ok {
				return nil, fmt.Errorf("unknown member %s", member)
			}
			return []MemberID{member}, nil
		},
	}
}

// --------------------------------------------------------------------------
// Invocation Channel
// --------------------------------------------------------------------------

// InvocationChannel sends requests to the members of the grid. It owns one
// client transport per member and is safe for concurrent use.
type InvocationChannel struct {
	config     common.ClientConfig
	members    []MemberID // sorted, decides ownership
	transports map[MemberID]transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	closed     atomic.Bool
}

// NewInvocationChannel connects to every endpoint of the config. Each
// endpoint is one member. newTransport is called once per member.
func NewInvocationChannel(
	config common.ClientConfig,
	newTransport func() transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*InvocationChannel, error) {
	if len(config.Endpoints) == 0 {
		return nil, grid.NewError(grid.RetCInvalidOperation, "no members configured")
	}

	members := slices.Clone(config.Endpoints)
	slices.Sort(members)
	members = slices.Compact(members)

	ch := &InvocationChannel{
		config:     config,
		members:    members,
		transports: make(map[MemberID]transport.IRPCClientTransport, len(members)),
		serializer: serializer,
	}

	for _, member := range members {
		memberConfig := config
		memberConfig.Endpoints = []string{member}

		t := newTransport()
		if err := t.Connect(memberConfig); err != nil {
			ch.Close()
			return nil, grid.InvocationError(member, err)
		}
		ch.transports[member] = t
	}

	Logger.Infof("Invocation channel connected to %d members", len(members))
	return ch, nil
}

// Members returns the sorted member list.
func (ch *InvocationChannel) Members() []MemberID {
	return slices.Clone(ch.members)
}

// Owner returns the member owning the key id.
func (ch *InvocationChannel) Owner(keyID string) MemberID {
	return ch.members[util.HashString(keyID, 0)%uint64(len(ch.members))]
}

// Timeout is the deadline applied to calls without one.
func (ch *InvocationChannel) Timeout() time.Duration {
	return ch.config.Timeout()
}

// Invoke sends req to every member of target. A transport failure on any
// member fails the whole call with an InvocationError (or a Timeout when
// the deadline expired); errors reported by members are returned in their
// Result.
func (ch *InvocationChannel) Invoke(ctx context.Context, shardID uint64, req *common.Message, target Target) (map[MemberID]Result, error) {
	members, err := target.resolve(ch)
	if err != nil {
		return nil, grid.InvocationError(target.String(), err)
	}
	reqs := make(map[MemberID]*common.Message, len(members))
	for _, member := range members {
		reqs[member] = req
	}
	return ch.invoke(ctx, shardID, reqs, target.String())
}

// InvokeEach sends a different request to each member, e.g. the share of a
// batch each member owns. Failures are reported as for Invoke.
func (ch *InvocationChannel) InvokeEach(ctx context.Context, shardID uint64, reqs map[MemberID]*common.Message) (map[MemberID]Result, error) {
	for member := range reqs {
		if _, ok := ch.transports[member]; !ok {
			return nil, grid.InvocationError(member, errors.New("unknown member"))
		}
	}
	return ch.invoke(ctx, shardID, reqs, fmt.Sprintf("%d members", len(reqs)))
}

// Close closes all member transports.
func (ch *InvocationChannel) Close() error {
	if ch.closed.Swap(true) {
		return nil
	}
	var errs []error
	for member, t := range ch.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", member, err))
		}
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (ch *InvocationChannel) invoke(ctx context.Context, shardID uint64, reqs map[MemberID]*common.Message, target string) (map[MemberID]Result, error) {
	if ch.closed.Load() {
		return nil, grid.InvocationError(target, errors.New("channel closed"))
	}

	// every call is bounded
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ch.config.Timeout())
		defer cancel()
	}

	var (
		mu      sync.Mutex
		results = make(map[MemberID]Result, len(reqs))
	)

	// encode everything before the first send, a bad request sends nothing
	encoded := make(map[MemberID][]byte, len(reqs))
	for member, req := range reqs {
		reqBytes, err := ch.serializer.Serialize(*req)
		if err != nil {
			return nil, invalid(req.MsgType.String()+" request", err)
		}
		encoded[member] = reqBytes
	}

	g, gctx := errgroup.WithContext(ctx)
	for member, req := range reqs {
		reqBytes := encoded[member]
		t := ch.transports[member]
		g.Go(func() error {
			start := time.Now()
			resp, err := invokeRPCRequest(gctx, shardID, reqBytes, req.MsgType, t, ch.serializer)
			observe(req.MsgType, start, err)
			if err != nil {
				return ch.fault(ctx, member, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if appErr := resp.AsError(); appErr != nil {
				results[member] = Result{Err: appErr}
			} else {
				results[member] = Result{Response: resp}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		Logger.Debugf("Invocation of %s failed: %v", target, err)
		return nil, err
	}
	return results, nil
}

// fault maps a transport failure to the grid error taxonomy. ctx is the
// caller's (deadline bound) context, not the errgroup's.
func (ch *InvocationChannel) fault(ctx context.Context, member MemberID, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return grid.TimeoutError(member, err)
	case ctx.Err() != nil:
		return grid.InvocationError(member, context.Canceled)
	default:
		return grid.InvocationError(member, err)
	}
}

// observe records one request in the client metrics
func observe(t common.MessageType, start time.Time, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dgrid_client_requests_total{type=%q}`, t)).Inc()
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`dgrid_client_request_errors_total{type=%q}`, t)).Inc()
	}
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dgrid_client_request_duration_seconds{type=%q}`, t)).UpdateDuration(start)
}
