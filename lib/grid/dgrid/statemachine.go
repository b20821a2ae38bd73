package dgrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/dgrid/internal"
	"github.com/ValentinKolb/dGrid/lib/grid/partition"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// GridStateMachine is a state machine implementation for Dragonboat RAFT.
// Every replica holds a full partition; commands are applied in log order.
type GridStateMachine struct {
	replicaID uint64
	shardID   uint64
	partition *partition.Partition
}

type replicaKey struct{ shardID, replicaID uint64 }

// replicas lets a cache on the same node host reach its local replica,
// which is where change events are raised.
var replicas = xsync.NewMapOf[replicaKey, *GridStateMachine]()

func localReplica(shardID, replicaID uint64) (*GridStateMachine, bool) {
	return replicas.Load(replicaKey{shardID, replicaID})
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory(opts ...partition.Option) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		p, err := partition.New(opts...)
		if err != nil {
			log.Warningf("failed to create partition with options, using defaults: %v", err)
			p, _ = partition.New()
		}
		fsm := &GridStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			partition: p,
		}
		replicas.Store(replicaKey{shardID, replicaID}, fsm)
		return fsm
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding partition method.
func (fsm *GridStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, grid.NewError(grid.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		val, ok, err := fsm.partition.Get(q.Key)
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{Value: val, Ok: ok}, nil
	case internal.QueryTSize:
		return fsm.partition.Size(), nil
	case internal.QueryTEntries:
		return fsm.partition.Entries(q.Predicate), nil
	case internal.QueryTKeys:
		return fsm.partition.Keys(q.Predicate), nil
	case internal.QueryTAggregatePartial:
		return fsm.partition.AggregatePartial(q.Predicate, q.Aggregator)
	default:
		return nil, grid.NewError(grid.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the partition.
// All write operations are serialized into []byte and are accessible via the entries struct.
// The result value is a grid.RetCode, the data is the JSON encoded result or the error message.
func (fsm *GridStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	cmd := internal.Command{}

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = failed(grid.NewError(grid.RetCInvalidOperation, "empty command ignored"))
			continue
		}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = failed(grid.NewError(grid.RetCInternalError, fmt.Sprintf("failed to deserialize command: %v", err)))
			continue
		}

		res, err := fsm.apply(&cmd)
		if err != nil {
			entries[idx].Result = failed(err)
			continue
		}
		data, err := json.Marshal(res)
		if err != nil {
			entries[idx].Result = failed(grid.NewError(grid.RetCInternalError, fmt.Sprintf("failed to encode result: %v", err)))
			continue
		}
		entries[idx].Result = sm.Result{Value: uint64(grid.RetCSuccess), Data: data}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func failed(err error) sm.Result {
	return sm.Result{Value: uint64(grid.CodeOf(err)), Data: []byte(err.Error())}
}

func invalid(cmd *internal.Command, err error) error {
	return grid.NewError(grid.RetCInvalidOperation, fmt.Sprintf("invalid %s command: %v", cmd.Type, err))
}

// apply executes one command. Every replica runs the same commands in the
// same order, so everything here must be deterministic.
func (fsm *GridStateMachine) apply(cmd *internal.Command) (any, error) {
	switch cmd.Type {
	case internal.CommandTPut:
		key, err := cmd.Key()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		val, err := cmd.Value()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		_, existed, err := fsm.partition.Put(key, val)
		return existed, err
	case internal.CommandTPutAll:
		es, err := cmd.Entries()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		return len(es), fsm.partition.PutAll(es)
	case internal.CommandTRemove:
		key, err := cmd.Key()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		return fsm.partition.Remove(key)
	case internal.CommandTInvoke:
		key, err := cmd.Key()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		proc, err := cmd.Processor()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		res, err := fsm.partition.Invoke(key, proc)
		if err != nil {
			return nil, err
		}
		return grid.ToWire(res), nil
	case internal.CommandTInvokeAll:
		pred, err := cmd.Predicate()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		proc, err := cmd.Processor()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		res, err := fsm.partition.InvokeAll(context.Background(), pred, proc)
		if err != nil {
			return nil, err
		}
		return grid.ToWireMap(res), nil
	case internal.CommandTAddIndex:
		x, ordered, err := cmd.Index()
		if err != nil {
			return nil, invalid(cmd, err)
		}
		return nil, fsm.partition.AddIndex(x, ordered)
	default:
		return nil, grid.NewError(grid.RetCInvalidOperation, fmt.Sprintf("unknown Command operation: %s", cmd.Type))
	}
}

// PrepareSnapshot captures the partition. Slots are immutable, so the
// capture stays valid while later updates are applied.
func (fsm *GridStateMachine) PrepareSnapshot() (interface{}, error) {
	return fsm.partition.Snapshot(), nil
}

// SaveSnapshot writes the captured state to the writer
func (fsm *GridStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snap, ok := ctx.(*partition.Snapshot)
	if !ok {
		return fmt.Errorf("unexpected snapshot context %T", ctx)
	}
	_, err := snap.WriteTo(writer)
	return err
}

// RecoverFromSnapshot replaces the partition's content.
func (fsm *GridStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.partition.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *GridStateMachine) Close() error {
	// a restarted replica may already have registered itself
	replicas.Compute(replicaKey{fsm.shardID, fsm.replicaID}, func(cur *GridStateMachine, loaded bool) (*GridStateMachine, bool) {
		return cur, !loaded || cur == fsm
	})
	fsm.partition.Close()
	return nil
}
