package client

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/rpc/common"
)

// remoteCompiler runs the compile invocable of an invocation shard
type remoteCompiler struct {
	ch      *InvocationChannel
	shardID uint64
	member  MemberID
}

// NewRemoteCompiler creates a compiler that ships queries to the compile
// invocable on member (empty selects the first member). Every failure,
// including unreachable members, is returned as a CompileError carrying
// the query text.
func NewRemoteCompiler(ch *InvocationChannel, shardID uint64, member MemberID) grid.ICompiler {
	return &remoteCompiler{ch: ch, shardID: shardID, member: member}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see grid.ICompiler)
// --------------------------------------------------------------------------

func (c *remoteCompiler) CompileFilter(ctx context.Context, query string, b grid.Bindings) (filter.Predicate, error) {
	raw, err := c.compile(ctx, common.CompileArgs{Query: query, Positional: b.Positional, Named: b.Named})
	if err != nil {
		return nil, grid.CompileError(query, err)
	}
	p, err := filter.UnmarshalPredicate(raw)
	if err != nil {
		return nil, grid.CompileError(query, err)
	}
	return p, nil
}

func (c *remoteCompiler) CompileExtractor(ctx context.Context, expr string) (filter.ValueExtractor, error) {
	raw, err := c.compile(ctx, common.CompileArgs{Query: expr, Extractor: true})
	if err != nil {
		return nil, grid.CompileError(expr, err)
	}
	x, err := filter.UnmarshalExtractor(raw)
	if err != nil {
		return nil, grid.CompileError(expr, err)
	}
	return x, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// compile returns the first non-empty result of the invocation
func (c *remoteCompiler) compile(ctx context.Context, args common.CompileArgs) ([]byte, error) {
	req, err := common.NewInvocationRequest(common.InvocableCompile, args)
	if err != nil {
		return nil, err
	}

	results, err := c.ch.Invoke(ctx, c.shardID, req, SingleNamedService(c.member))
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		if len(r.Response.Value) > 0 {
			return r.Response.Value, nil
		}
	}
	return nil, errors.New("compile service returned no result")
}
