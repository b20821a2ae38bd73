package internal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTPut       CommandType = iota // Insert or replace an entry.
	CommandTPutAll                       // Upsert a batch of entries.
	CommandTRemove                       // Delete an entry.
	CommandTInvoke                       // Run a processor against one key.
	CommandTInvokeAll                    // Run a processor against all matching entries.
	CommandTAddIndex                     // Create an index on every replica.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPut:
		return "Put"
	case CommandTPutAll:
		return "PutAll"
	case CommandTRemove:
		return "Remove"
	case CommandTInvoke:
		return "Invoke"
	case CommandTInvokeAll:
		return "InvokeAll"
	case CommandTAddIndex:
		return "AddIndex"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
//
// Target is the encoded key for key commands, the encoded predicate for
// InvokeAll and the encoded extractor for AddIndex. Payload is the encoded
// value, batch, processor or index flags.
type Command struct {
	Type    CommandType
	Target  []byte
	Payload []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return 1 + 4 + len(command.Target) + len(command.Payload) // Type + TargetLen + Target + Payload
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for target length (big endian),
// N bytes for target data,
// N bytes for payload data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())
	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Target)))
	copy(result[5:5+len(command.Target)], command.Target)
	copy(result[5+len(command.Target):], command.Payload)
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	// Minimum size: 1 (Type) + 4 (TargetLen) = 5 bytes
	if len(data) < 5 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	targetLen := binary.BigEndian.Uint32(data[1:5])
	if len(data) < 5+int(targetLen) {
		return fmt.Errorf("data too short for target of length %d", targetLen)
	}

	command.Target = append(command.Target[:0], data[5:5+targetLen]...)
	if len(data) > 5+int(targetLen) {
		command.Payload = append(command.Payload[:0], data[5+int(targetLen):]...)
	} else {
		command.Payload = nil
	}
	return nil
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func NewPut(key, value any) (Command, error) {
	k, err := doc.Encode(key)
	if err != nil {
		return Command{}, err
	}
	v, err := doc.Encode(value)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: CommandTPut, Target: k, Payload: v}, nil
}

func NewPutAll(entries []filter.Entry) (Command, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: CommandTPutAll, Payload: b}, nil
}

func NewRemove(key any) (Command, error) {
	k, err := doc.Encode(key)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: CommandTRemove, Target: k}, nil
}

func NewInvoke(key any, proc processor.EntryProcessor) (Command, error) {
	k, err := doc.Encode(key)
	if err != nil {
		return Command{}, err
	}
	p, err := processor.Marshal(proc)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: CommandTInvoke, Target: k, Payload: p}, nil
}

func NewInvokeAll(pred filter.Predicate, proc processor.EntryProcessor) (Command, error) {
	if pred == nil {
		pred = filter.Always{}
	}
	f, err := filter.MarshalPredicate(pred)
	if err != nil {
		return Command{}, err
	}
	p, err := processor.Marshal(proc)
	if err != nil {
		return Command{}, err
	}
	return Command{Type: CommandTInvokeAll, Target: f, Payload: p}, nil
}

func NewAddIndex(x filter.ValueExtractor, ordered bool) (Command, error) {
	b, err := filter.MarshalExtractor(x)
	if err != nil {
		return Command{}, err
	}
	flags := []byte{0}
	if ordered {
		flags[0] = 1
	}
	return Command{Type: CommandTAddIndex, Target: b, Payload: flags}, nil
}

// --------------------------------------------------------------------------
// Accessors (used by the state machine)
// --------------------------------------------------------------------------

func (command *Command) Key() (any, error) { return doc.Decode(command.Target) }

func (command *Command) Value() (any, error) { return doc.Decode(command.Payload) }

func (command *Command) Entries() ([]filter.Entry, error) {
	var entries []filter.Entry
	if err := json.Unmarshal(command.Payload, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (command *Command) Processor() (processor.EntryProcessor, error) {
	return processor.Unmarshal(command.Payload)
}

func (command *Command) Predicate() (filter.Predicate, error) {
	return filter.UnmarshalPredicate(command.Target)
}

func (command *Command) Index() (filter.ValueExtractor, bool, error) {
	x, err := filter.UnmarshalExtractor(command.Target)
	if err != nil {
		return nil, false, err
	}
	return x, len(command.Payload) > 0 && command.Payload[0] == 1, nil
}
