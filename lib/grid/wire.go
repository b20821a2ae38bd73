package grid

import (
	"github.com/ValentinKolb/dGrid/lib/processor"
)

// WireResult is the serialisable form of a processor.Result. The error is
// carried as code and message and rebuilt with FromCode.
type WireResult struct {
	Key   any     `json:"key" msgpack:"key"`
	Value any     `json:"value,omitempty" msgpack:"value,omitempty"`
	Code  RetCode `json:"code,omitempty" msgpack:"code,omitempty"`
	Msg   string  `json:"msg,omitempty" msgpack:"msg,omitempty"`
}

// ToWire converts a result for transport.
func ToWire(r processor.Result) WireResult {
	w := WireResult{Key: r.Key, Value: r.Value}
	if r.Err != nil {
		w.Code = CodeOf(r.Err)
		w.Msg = r.Err.Error()
	}
	return w
}

// Result rebuilds the processor result.
func (w WireResult) Result() processor.Result {
	return processor.Result{Key: w.Key, Value: w.Value, Err: FromCode(w.Code, w.Msg)}
}

// ToWireMap converts InvokeAll results for transport.
func ToWireMap(results map[string]processor.Result) map[string]WireResult {
	out := make(map[string]WireResult, len(results))
	for id, r := range results {
		out[id] = ToWire(r)
	}
	return out
}

// FromWireMap rebuilds InvokeAll results.
func FromWireMap(results map[string]WireResult) map[string]processor.Result {
	out := make(map[string]processor.Result, len(results))
	for id, w := range results {
		out[id] = w.Result()
	}
	return out
}
