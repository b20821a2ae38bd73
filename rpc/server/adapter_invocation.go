package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/rpc/common"
)

// Invocable is a named service of an invocation shard. The result is JSON
// encoded into the response.
type Invocable func(ctx context.Context, req *common.Message) (any, error)

// NewInvocationServerAdapter creates the adapter of invocation shards.
func NewInvocationServerAdapter(invocables map[string]Invocable) IRPCServerAdapter {
	return &invocationServerAdapter{invocables: invocables}
}

type invocationServerAdapter struct {
	invocables map[string]Invocable
}

func (adapter *invocationServerAdapter) Handle(ctx context.Context, req *common.Message, _ grid.ICache) *common.Message {
	if req.MsgType != common.MsgTInvocation {
		return common.NewErrorResponse(grid.RetCUnsupportedOperation,
			fmt.Sprintf("invocation adapter: unsupported message type %s", req.MsgType))
	}

	fn, ok := adapter.invocables[req.Name]
	if !ok {
		return common.NewResponse(req.MsgType, nil, grid.NewError(grid.RetCInvalidOperation, "unknown invocable "+req.Name))
	}

	result, err := fn(ctx, req)
	return common.NewResponse(req.MsgType, result, err)
}

// --------------------------------------------------------------------------
// Built-in invocables
// --------------------------------------------------------------------------

// compileInvocable compiles a query (or a path expression) and answers with
// its wire encoding
func compileInvocable(compiler grid.ICompiler) Invocable {
	return func(ctx context.Context, req *common.Message) (any, error) {
		var args common.CompileArgs
		if err := req.Args(&args); err != nil {
			return nil, &grid.Error{Code: grid.RetCInvalidOperation, Msg: "malformed compile arguments", Err: err}
		}

		if args.Extractor {
			x, err := compiler.CompileExtractor(ctx, args.Query)
			if err != nil {
				return nil, err
			}
			b, err := filter.MarshalExtractor(x)
			if err != nil {
				return nil, grid.CompileError(args.Query, err)
			}
			return json.RawMessage(b), nil
		}

		p, err := compiler.CompileFilter(ctx, args.Query, grid.Bindings{Positional: args.Positional, Named: args.Named})
		if err != nil {
			return nil, err
		}
		b, err := filter.MarshalPredicate(p)
		if err != nil {
			return nil, grid.CompileError(args.Query, err)
		}
		return json.RawMessage(b), nil
	}
}

func pingInvocable(context.Context, *common.Message) (any, error) {
	return "pong", nil
}
