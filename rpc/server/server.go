package server

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/dgrid"
	"github.com/ValentinKolb/dGrid/lib/grid/lgrid"
	"github.com/ValentinKolb/dGrid/lib/grid/partition"
	"github.com/ValentinKolb/dGrid/rpc/common"
	"github.com/ValentinKolb/dGrid/rpc/serializer"
	"github.com/ValentinKolb/dGrid/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the shard type, the cache it encapsulates and the adapter
// that handles requests for the cache
type serverShard struct {
	Type    common.ServerShardType
	Cache   grid.ICache // nil for the invocation service
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
		subs:       newSubscriptionRegistry(config.SubscriptionLease(), config.SubscriptionBuffer),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	subs       *subscriptionRegistry
	nodeHost   *dragonboat.NodeHost
	closeOnce  sync.Once
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(s.handle)
}

// handle decodes a request, lets the shard's adapter answer it and encodes
// the response
func (s *rpcServer) handle(ctx context.Context, shardId uint64, req []byte) []byte {
	start := time.Now()

	var msg common.Message
	var respMsg *common.Message

	// Get appropriate shard
	shard, ok := s.shards.Load(shardId)

	// Case shard does not exist -> error
	if !ok {
		respMsg = common.NewErrorResponse(grid.RetCInvalidOperation, fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(grid.RetCInvalidOperation, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		// Let the adapter handle the request within the server timeout
		if timeout := s.config.Timeout(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		respMsg = shard.Adapter.Handle(ctx, &msg, shard.Cache)
	}

	observe(msg.MsgType, respMsg, start)

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("Failed to serialize %s response: %v", respMsg.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(grid.RetCInternalError, fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// observe records one handled request in the server metrics
func observe(t common.MessageType, resp *common.Message, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dgrid_server_requests_total{type=%q}`, t)).Inc()
	if resp.Err != "" {
		code := grid.RetCode(resp.Code)
		metrics.GetOrCreateCounter(fmt.Sprintf(`dgrid_server_request_errors_total{type=%q,code=%q}`, t, code)).Inc()
	}
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dgrid_server_request_duration_seconds{type=%q}`, t)).UpdateDuration(start)
}

func (s *rpcServer) init() error {

	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	// Create the Dragonboat NodeHost
	var err error
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		s.nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	// Processor parallelism of every partition
	opts := []partition.Option{partition.WithWorkers(s.config.Workers)}

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of shards. Each shard is a
		cache, a lock manager or the invocation service. Local shards hold this
		member's partition of the data, remote shards are replicated with raft.
	*/

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("duplicate shard id %d", shardConfig.ShardID)
		}

		var shard serverShard
		switch shardConfig.Type {
		case common.ShardTypeLocalCache:
			shard = serverShard{Cache: lgrid.NewLocalCache(opts...), Adapter: NewCacheServerAdapter(s.subs)}

		case common.ShardTypeLocalLockManager:
			shard = serverShard{Cache: lgrid.NewLocalCache(), Adapter: NewLockManagerServerAdapter()}

		case common.ShardTypeRemoteCache, common.ShardTypeRemoteLockManager:
			cache, err := s.startReplica(shardConfig.ShardID, opts)
			if err != nil {
				return err
			}
			shard = serverShard{Cache: cache, Adapter: NewCacheServerAdapter(s.subs)}
			if shardConfig.Type == common.ShardTypeRemoteLockManager {
				shard.Adapter = NewLockManagerServerAdapter()
			}

		case common.ShardTypeInvocationService:
			shard = serverShard{Adapter: NewInvocationServerAdapter(s.invocables())}

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}

		shard.Type = shardConfig.Type
		s.shards.Store(shardConfig.ShardID, shard)
		Logger.Infof("created %s for shard %d", shardConfig.Type, shardConfig.ShardID)
	}

	Logger.Infof("dGrid setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// startReplica starts the raft replica of a remote shard
func (s *rpcServer) startReplica(shardID uint64, opts []partition.Option) (grid.ICache, error) {
	if s.nodeHost == nil {
		return nil, fmt.Errorf("node host is nil, cannot create remote shard %d", shardID)
	}
	err := s.nodeHost.StartConcurrentReplica(
		s.config.ClusterMembers, false,
		dgrid.CreateStateMachineFactory(opts...),
		s.config.ToDragonboatConfig(shardID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start shard %d: %w", shardID, err)
	}
	return dgrid.NewDistributedCache(s.nodeHost, shardID, s.config.ReplicaID, s.config.Timeout()), nil
}

// invocables are the services of the invocation shard
func (s *rpcServer) invocables() map[string]Invocable {
	return map[string]Invocable{
		common.InvocableCompile:    compileInvocable(grid.NewCachingCompiler(grid.NewLocalCompiler(), 0)),
		common.InvocableMemberInfo: s.memberInfo,
		common.InvocablePing:       pingInvocable,
	}
}

// memberInfo lists the shards of this member with their entry counts
func (s *rpcServer) memberInfo(ctx context.Context, _ *common.Message) (any, error) {
	info := common.MemberInfo{Member: s.config.Transport.Endpoint}
	var errs []error
	s.shards.Range(func(id uint64, shard serverShard) bool {
		si := common.ShardInfo{ShardID: id, Type: shard.Type}
		if shard.Cache != nil {
			n, err := shard.Cache.Size(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("shard %d: %w", id, err))
			}
			si.Entries = n
		}
		info.Shards = append(info.Shards, si)
		return true
	})
	if len(errs) > 0 {
		return nil, grid.Classify(errors.Join(errs...), s.config.Transport.Endpoint)
	}
	slices.SortFunc(info.Shards, func(a, b common.ShardInfo) int { return cmp.Compare(a.ShardID, b.ShardID) })
	return info, nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer.
// It blocks until Close is called.
func (s *rpcServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and releases all shards
func (s *rpcServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.transport.Close()
		s.subs.close()
		s.shards.Range(func(id uint64, shard serverShard) bool {
			if shard.Cache != nil {
				if cerr := shard.Cache.Close(); cerr != nil {
					Logger.Warningf("Failed to close shard %d: %v", id, cerr)
				}
			}
			return true
		})
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
	})
	return err
}
