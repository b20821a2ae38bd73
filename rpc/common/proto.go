package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. Documents,
// predicates, processors and results travel as JSON inside the byte fields,
// so every serializer carries them unchanged.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" msgpack:"msg_type"`

	// Request fields
	Key    []byte `json:"key,omitempty" msgpack:"key,omitempty"`       // Used for: key operations, Acquire, Release
	Filter []byte `json:"filter,omitempty" msgpack:"filter,omitempty"` // Used for: predicates, the AddIndex extractor, Subscribe scopes
	Op     []byte `json:"op,omitempty" msgpack:"op,omitempty"`         // Used for: processors, aggregators, invocation arguments
	Name   string `json:"name,omitempty" msgpack:"name,omitempty"`     // Used for: subscription handles, invocable names, lock owners
	Num    int64  `json:"num,omitempty" msgpack:"num,omitempty"`       // Used for: poll wait and lock timeout (ms), index flags, sizes

	// Request and response
	Value []byte `json:"value,omitempty" msgpack:"value,omitempty"` // Used for: Put (request), results (response)

	// Response only fields
	Ok   bool   `json:"ok,omitempty" msgpack:"ok,omitempty"`     // Used for: Get, Remove, Acquire, Release responses
	Code uint64 `json:"code,omitempty" msgpack:"code,omitempty"` // grid.RetCode of a failed request
	Err  string `json:"err,omitempty" msgpack:"err,omitempty"`   // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty" msgpack:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// CompileArgs are the arguments of the compile invocable.
type CompileArgs struct {
	Query      string         `json:"query"`
	Positional []any          `json:"positional,omitempty"`
	Named      map[string]any `json:"named,omitempty"`
	Extractor  bool           `json:"extractor,omitempty"` // compile a path expression instead of a filter
}

// ShardInfo describes one shard of a member.
type ShardInfo struct {
	ShardID uint64          `json:"shardId"`
	Type    ServerShardType `json:"type"`
	Entries int64           `json:"entries"`
}

// MemberInfo is the result of the member-info invocable.
type MemberInfo struct {
	Member string      `json:"member"`
	Shards []ShardInfo `json:"shards"`
}

// Names of the invocables every server registers on its invocation shard.
const (
	InvocableCompile    = "compile"
	InvocableMemberInfo = "member-info"
	InvocablePing       = "ping"
)

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

func encodePredicate(p filter.Predicate) ([]byte, error) {
	if p == nil {
		p = filter.Always{}
	}
	return filter.MarshalPredicate(p)
}

func keyMessage(t MessageType, key any) (*Message, error) {
	k, err := doc.Encode(key)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: t, Key: k}, nil
}

// NewGetRequest creates a new Get request
func NewGetRequest(key any) (*Message, error) {
	return keyMessage(MsgTGridGet, key)
}

// NewGetResponse creates a new Get response
func NewGetResponse(value any, found bool, err error) *Message {
	if err != nil {
		return NewResponse(MsgTGridGet, nil, err)
	}
	msg := &Message{MsgType: MsgTGridGet, Ok: found}
	if found {
		v, err := doc.Encode(value)
		if err != nil {
			return NewResponse(MsgTGridGet, nil, err)
		}
		msg.Value = v
	}
	return msg
}

// NewPutRequest creates a new Put request
func NewPutRequest(key, value any) (*Message, error) {
	msg, err := keyMessage(MsgTGridPut, key)
	if err != nil {
		return nil, err
	}
	if msg.Value, err = doc.Encode(value); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewPutAllRequest creates a new PutAll request
func NewPutAllRequest(entries []filter.Entry) (*Message, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTGridPutAll, Value: b}, nil
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key any) (*Message, error) {
	return keyMessage(MsgTGridRemove, key)
}

// NewSizeRequest creates a new Size request
func NewSizeRequest() *Message {
	return &Message{MsgType: MsgTGridSize}
}

// NewEntriesRequest creates a new Entries request
func NewEntriesRequest(p filter.Predicate) (*Message, error) {
	f, err := encodePredicate(p)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTGridEntries, Filter: f}, nil
}

// NewKeysRequest creates a new Keys request
func NewKeysRequest(p filter.Predicate) (*Message, error) {
	f, err := encodePredicate(p)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTGridKeys, Filter: f}, nil
}

// NewAddIndexRequest creates a new AddIndex request
func NewAddIndexRequest(x filter.ValueExtractor, ordered bool) (*Message, error) {
	b, err := filter.MarshalExtractor(x)
	if err != nil {
		return nil, err
	}
	msg := &Message{MsgType: MsgTGridAddIndex, Filter: b}
	if ordered {
		msg.Num = 1
	}
	return msg, nil
}

// NewAggregateRequest creates a new Aggregate request. Members answer with
// their aggregate.Partial so the client can combine them.
func NewAggregateRequest(p filter.Predicate, agg aggregate.Aggregator) (*Message, error) {
	f, err := encodePredicate(p)
	if err != nil {
		return nil, err
	}
	a, err := json.Marshal(agg)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTGridAggregate, Filter: f, Op: a}, nil
}

// NewInvokeRequest creates a new Invoke request
func NewInvokeRequest(key any, proc processor.EntryProcessor) (*Message, error) {
	msg, err := keyMessage(MsgTGridInvoke, key)
	if err != nil {
		return nil, err
	}
	if msg.Op, err = processor.Marshal(proc); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewInvokeAllRequest creates a new InvokeAll request
func NewInvokeAllRequest(p filter.Predicate, proc processor.EntryProcessor) (*Message, error) {
	f, err := encodePredicate(p)
	if err != nil {
		return nil, err
	}
	op, err := processor.Marshal(proc)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTGridInvokeAll, Filter: f, Op: op}, nil
}

// NewSubscribeRequest creates a new Subscribe request, the response carries
// the handle in Name
func NewSubscribeRequest(s events.Scope) (*Message, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTEvtSubscribe, Filter: b}, nil
}

// NewPollRequest creates a new Poll request. The server answers as soon as
// events are buffered, or with an empty batch after wait.
func NewPollRequest(h events.Handle, wait time.Duration) *Message {
	return &Message{MsgType: MsgTEvtPoll, Name: string(h), Num: wait.Milliseconds()}
}

// NewUnsubscribeRequest creates a new Unsubscribe request
func NewUnsubscribeRequest(h events.Handle) *Message {
	return &Message{MsgType: MsgTEvtUnsubscribe, Name: string(h)}
}

// NewInvocationRequest creates a request for the named invocable of an
// invocation shard. args are JSON encoded.
func NewInvocationRequest(name string, args any) (*Message, error) {
	msg := &Message{MsgType: MsgTInvocation, Name: name}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		msg.Op = b
	}
	return msg, nil
}

// NewAcquireRequest creates a new Acquire request. Lock keys are plain
// strings and travel unencoded.
func NewAcquireRequest(key string, timeout time.Duration) *Message {
	return &Message{MsgType: MsgTLCKAcquire, Key: []byte(key), Num: timeout.Milliseconds()}
}

// NewAcquireResponse creates a new Acquire response
func NewAcquireResponse(ok bool, ownerID string, err error) *Message {
	msg := NewResponse(MsgTLCKAcquire, nil, err)
	msg.Ok = ok
	msg.Name = ownerID
	return msg
}

// NewReleaseRequest creates a new Release request
func NewReleaseRequest(key, ownerID string) *Message {
	return &Message{MsgType: MsgTLCKRelease, Key: []byte(key), Name: ownerID}
}

// NewReleaseResponse creates a new Release response
func NewReleaseResponse(ok bool, err error) *Message {
	msg := NewResponse(MsgTLCKRelease, nil, err)
	msg.Ok = ok
	return msg
}

// NewResponse creates a response of type t. result is JSON encoded into
// Value; err sets Code and Err instead.
func NewResponse(t MessageType, result any, err error) *Message {
	msg := &Message{MsgType: t}
	if err != nil {
		msg.Code = uint64(grid.CodeOf(err))
		msg.Err = err.Error()
		return msg
	}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			msg.Code = uint64(grid.RetCInternalError)
			msg.Err = fmt.Sprintf("failed to encode %s result: %v", t, err)
			return msg
		}
		msg.Value = b
	}
	return msg
}

// NewErrorResponse creates an error response for requests that could not
// be dispatched at all
func NewErrorResponse(code grid.RetCode, errMsg string) *Message {
	return &Message{MsgType: MsgTError, Code: uint64(code), Err: errMsg}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// AsError rebuilds the error carried by a response, nil if there is none.
func (m *Message) AsError() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := grid.RetCode(m.Code)
	if code == grid.RetCSuccess {
		code = grid.RetCInternalError
	}
	return grid.FromCode(code, m.Err)
}

func (m *Message) KeyDoc() (any, error) { return doc.Decode(m.Key) }

func (m *Message) ValueDoc() (any, error) { return doc.Decode(m.Value) }

func (m *Message) Entries() ([]filter.Entry, error) {
	var entries []filter.Entry
	if err := json.Unmarshal(m.Value, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (m *Message) Predicate() (filter.Predicate, error) {
	if len(m.Filter) == 0 {
		return filter.Always{}, nil
	}
	return filter.UnmarshalPredicate(m.Filter)
}

func (m *Message) Index() (filter.ValueExtractor, bool, error) {
	x, err := filter.UnmarshalExtractor(m.Filter)
	if err != nil {
		return nil, false, err
	}
	return x, m.Num == 1, nil
}

func (m *Message) Aggregator() (aggregate.Aggregator, error) {
	var agg aggregate.Aggregator
	if err := json.Unmarshal(m.Op, &agg); err != nil {
		return aggregate.Aggregator{}, err
	}
	return agg, nil
}

func (m *Message) Processor() (processor.EntryProcessor, error) {
	return processor.Unmarshal(m.Op)
}

func (m *Message) Scope() (events.Scope, error) {
	var s events.Scope
	if len(m.Filter) == 0 {
		return events.AllEntries(), nil
	}
	if err := json.Unmarshal(m.Filter, &s); err != nil {
		return events.Scope{}, err
	}
	return s, nil
}

// Wait returns the poll wait of a Poll request, or the lock timeout of an
// Acquire request.
func (m *Message) Wait() time.Duration {
	return time.Duration(m.Num) * time.Millisecond
}

// Args decodes the invocation arguments into out.
func (m *Message) Args(out any) error {
	if len(m.Op) == 0 {
		return nil
	}
	return json.Unmarshal(m.Op, out)
}

// Result decodes the JSON result of a response into out.
func (m *Message) Result(out any) error {
	if len(m.Value) == 0 {
		return nil
	}
	return json.Unmarshal(m.Value, out)
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType represents the type of operation to be performed
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTUnknown:        "unknown",
	MsgTSuccess:        "success",
	MsgTError:          "error",
	MsgTGridGet:        "get",
	MsgTGridPut:        "put",
	MsgTGridPutAll:     "putAll",
	MsgTGridRemove:     "remove",
	MsgTGridSize:       "size",
	MsgTGridEntries:    "entries",
	MsgTGridKeys:       "keys",
	MsgTGridAddIndex:   "addIndex",
	MsgTGridAggregate:  "aggregate",
	MsgTGridInvoke:     "invoke",
	MsgTGridInvokeAll:  "invokeAll",
	MsgTEvtSubscribe:   "subscribe",
	MsgTEvtPoll:        "poll",
	MsgTEvtUnsubscribe: "unsubscribe",
	MsgTInvocation:     "invocation",
	MsgTLCKAcquire:     "acquire",
	MsgTLCKRelease:     "release",
	MsgTCustom:         "custom",
}

// String returns the string representation of a MessageType
func (t MessageType) String() string {
	if s, ok := msgTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", t)
}

// MarshalJSON implements the json.Marshaler interface for MessageType
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for typ, name := range msgTypeNames {
		if name == s && typ != MsgTUnknown {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ICache operations

	MsgTGridGet       // Get a value by key
	MsgTGridPut       // Upsert an entry
	MsgTGridPutAll    // Upsert a batch of entries
	MsgTGridRemove    // Remove an entry
	MsgTGridSize      // Count the entries
	MsgTGridEntries   // Query matching entries
	MsgTGridKeys      // Query matching keys
	MsgTGridAddIndex  // Create an index
	MsgTGridAggregate // Aggregate matching entries (partial result)
	MsgTGridInvoke    // Run a processor against one key
	MsgTGridInvokeAll // Run a processor against matching entries

	// Change notifications

	MsgTEvtSubscribe   // Register a buffered subscription
	MsgTEvtPoll        // Fetch buffered events
	MsgTEvtUnsubscribe // Drop a subscription

	// Invocation service

	MsgTInvocation // Run a named invocable

	// ILockManager operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock

	// Custom operations

	MsgTCustom // Custom operation type
)
