package common

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

func TestResponseCarriesErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"compile", grid.CompileError("age >", errors.New("unexpected end")), grid.ErrCompile},
		{"timeout", grid.TimeoutError("a:1", nil), grid.ErrTimeout},
		{"invalid", grid.NewError(grid.RetCInvalidOperation, "bad key"), grid.ErrInvalid},
		{"plain error", errors.New("boom"), grid.NewError(grid.RetCInternalError, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewResponse(MsgTGridGet, nil, tt.err)

			// the message crosses the wire
			b, err := json.Marshal(resp)
			if err != nil {
				t.Fatal(err)
			}
			var decoded Message
			if err := json.Unmarshal(b, &decoded); err != nil {
				t.Fatal(err)
			}

			if err := decoded.AsError(); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSuccessResponseHasNoError(t *testing.T) {
	resp := NewResponse(MsgTGridSize, int64(3), nil)
	if err := resp.AsError(); err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	var n int64
	if err := resp.Result(&n); err != nil || n != 3 {
		t.Errorf("Expected 3, got %d (%v)", n, err)
	}
}

func TestErrorResponseWithoutCode(t *testing.T) {
	resp := &Message{MsgType: MsgTError}
	var gerr *grid.Error
	if err := resp.AsError(); !errors.As(err, &gerr) || gerr.Code != grid.RetCInternalError {
		t.Errorf("Expected internal error, got %v", err)
	}
}

func TestUnencodableResultIsInternalError(t *testing.T) {
	resp := NewResponse(MsgTGridGet, make(chan int), nil)
	if err := resp.AsError(); !errors.Is(err, grid.NewError(grid.RetCInternalError, "")) {
		t.Errorf("Expected internal error, got %v", err)
	}
}

func TestRequestPayloads(t *testing.T) {
	key := map[string]any{"firstName": "John", "lastName": "Doe"}

	t.Run("Key", func(t *testing.T) {
		req, err := NewGetRequest(key)
		if err != nil {
			t.Fatal(err)
		}
		got, err := req.KeyDoc()
		if err != nil {
			t.Fatal(err)
		}
		want, _ := doc.ID(key)
		if id, _ := doc.ID(got); id != want {
			t.Errorf("Expected key %s, got %s", want, id)
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		if _, err := NewPutRequest(make(chan int), 1); err == nil {
			t.Error("Expected error for a channel key")
		}
	})

	t.Run("Predicate", func(t *testing.T) {
		p := filter.GreaterThan{Extractor: filter.Property{Name: "age"}, Value: 58}
		req, err := NewKeysRequest(p)
		if err != nil {
			t.Fatal(err)
		}
		got, err := req.Predicate()
		if err != nil {
			t.Fatal(err)
		}
		if !got.Evaluate(filter.Entry{Value: map[string]any{"age": 59.0}}) {
			t.Errorf("Decoded predicate %#v does not match", got)
		}

		// a missing filter selects everything
		if got, _ := (&Message{}).Predicate(); got != (filter.Always{}) {
			t.Errorf("Expected Always, got %#v", got)
		}
	})

	t.Run("Aggregator", func(t *testing.T) {
		req, err := NewAggregateRequest(filter.Always{}, aggregate.Max(filter.Property{Name: "age"}))
		if err != nil {
			t.Fatal(err)
		}
		agg, err := req.Aggregator()
		if err != nil {
			t.Fatal(err)
		}
		if agg.Kind != aggregate.KindMax || agg.Extractor.String() != "age" {
			t.Errorf("Unexpected aggregator %#v", agg)
		}
	})

	t.Run("Processor", func(t *testing.T) {
		req, err := NewInvokeRequest("k", &processor.Increment{Path: "age", Delta: 2})
		if err != nil {
			t.Fatal(err)
		}
		proc, err := req.Processor()
		if err != nil {
			t.Fatal(err)
		}
		inc, ok := proc.(*processor.Increment)
		if !ok || inc.Delta != 2 || inc.Path != "age" {
			t.Errorf("Unexpected processor %#v", proc)
		}
	})

	t.Run("Scope", func(t *testing.T) {
		id, _ := doc.ID("watched")
		req, err := NewSubscribeRequest(events.Keys(id))
		if err != nil {
			t.Fatal(err)
		}
		s, err := req.Scope()
		if err != nil {
			t.Fatal(err)
		}
		if ids := s.KeyIDs(); len(ids) != 1 || ids[0] != id {
			t.Errorf("Unexpected scope keys %v", ids)
		}
	})

	t.Run("Wait", func(t *testing.T) {
		if w := NewPollRequest("h", 1500*time.Millisecond).Wait(); w != 1500*time.Millisecond {
			t.Errorf("Expected 1.5s, got %s", w)
		}
		if w := NewAcquireRequest("lock", 0).Wait(); w != 0 {
			t.Errorf("Expected no timeout, got %s", w)
		}
	})

	t.Run("Invocation", func(t *testing.T) {
		req, err := NewInvocationRequest(InvocableCompile, CompileArgs{Query: "age > ?1", Positional: []any{1}})
		if err != nil {
			t.Fatal(err)
		}
		var args CompileArgs
		if err := req.Args(&args); err != nil {
			t.Fatal(err)
		}
		if req.Name != InvocableCompile || args.Query != "age > ?1" || args.Positional[0] != 1.0 {
			t.Errorf("Unexpected invocation %+v %+v", req, args)
		}
	})
}

func TestMessageTypeJSON(t *testing.T) {
	b, err := json.Marshal(MsgTGridInvokeAll)
	if err != nil || string(b) != `"invokeAll"` {
		t.Fatalf("Unexpected encoding %s (%v)", b, err)
	}
	var typ MessageType
	if err := json.Unmarshal(b, &typ); err != nil || typ != MsgTGridInvokeAll {
		t.Errorf("Expected invokeAll, got %s (%v)", typ, err)
	}
	if err := json.Unmarshal([]byte(`"nope"`), &typ); err == nil {
		t.Error("Expected unknown message types to be rejected")
	}
}
