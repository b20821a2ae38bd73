package grid

import (
	"context"
	"encoding/json"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/qlang"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ICompiler turns query text into predicates and extractors.
// Failures are returned as CompileError.
type ICompiler interface {
	CompileFilter(ctx context.Context, query string, b Bindings) (filter.Predicate, error)
	CompileExtractor(ctx context.Context, expr string) (filter.ValueExtractor, error)
}

// --------------------------------------------------------------------------
// Local compiler
// --------------------------------------------------------------------------

type localCompiler struct{}

// NewLocalCompiler runs the query grammar in process.
func NewLocalCompiler() ICompiler { return localCompiler{} }

func (localCompiler) CompileFilter(ctx context.Context, query string, b Bindings) (filter.Predicate, error) {
	if err := ctx.Err(); err != nil {
		return nil, CompileError(query, err)
	}
	p, err := qlang.CompileFilter(query, b)
	if err != nil {
		return nil, CompileError(query, err)
	}
	return p, nil
}

func (localCompiler) CompileExtractor(ctx context.Context, expr string) (filter.ValueExtractor, error) {
	if err := ctx.Err(); err != nil {
		return nil, CompileError(expr, err)
	}
	x, err := qlang.CompileExtractor(expr)
	if err != nil {
		return nil, CompileError(expr, err)
	}
	return x, nil
}

// --------------------------------------------------------------------------
// Caching compiler
// --------------------------------------------------------------------------

// DefaultCompileCacheSize is used when NewCachingCompiler gets size <= 0.
const DefaultCompileCacheSize = 1024

type cachingCompiler struct {
	inner      ICompiler
	predicates *lru.Cache[string, filter.Predicate]
	extractors *lru.Cache[string, filter.ValueExtractor]
}

// NewCachingCompiler memoises successful compilations of inner. Entries are
// keyed by the full query text plus the canonical form of the bindings, so
// a changed query or changed values never hit a stale entry. Predicates are
// immutable and shared between callers.
func NewCachingCompiler(inner ICompiler, size int) ICompiler {
	if size <= 0 {
		size = DefaultCompileCacheSize
	}
	// lru.New only fails for size <= 0
	predicates, _ := lru.New[string, filter.Predicate](size)
	extractors, _ := lru.New[string, filter.ValueExtractor](size)
	return &cachingCompiler{inner: inner, predicates: predicates, extractors: extractors}
}

func (c *cachingCompiler) CompileFilter(ctx context.Context, query string, b Bindings) (filter.Predicate, error) {
	key, err := signature(query, b)
	if err != nil {
		return nil, CompileError(query, err)
	}
	if p, ok := c.predicates.Get(key); ok {
		return p, nil
	}
	p, err := c.inner.CompileFilter(ctx, query, b)
	if err != nil {
		return nil, err
	}
	c.predicates.Add(key, p)
	return p, nil
}

func (c *cachingCompiler) CompileExtractor(ctx context.Context, expr string) (filter.ValueExtractor, error) {
	if x, ok := c.extractors.Get(expr); ok {
		return x, nil
	}
	x, err := c.inner.CompileExtractor(ctx, expr)
	if err != nil {
		return nil, err
	}
	c.extractors.Add(expr, x)
	return x, nil
}

// signature is the cache key: query text and canonical bindings. Values are
// normalised first, so 58 and 58.0 share an entry but "58" does not.
func signature(query string, b Bindings) (string, error) {
	norm := Bindings{}
	if len(b.Positional) > 0 {
		pos, err := doc.Normalize(b.Positional)
		if err != nil {
			return "", err
		}
		norm.Positional = pos.([]any)
	}
	if len(b.Named) > 0 {
		named, err := doc.Normalize(b.Named)
		if err != nil {
			return "", err
		}
		norm.Named = named.(map[string]any)
	}
	// encoding/json sorts map keys
	bs, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}
	return query + "\x00" + string(bs), nil
}
