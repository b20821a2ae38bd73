package internal

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Command with target and payload",
			command:  Command{Type: CommandTPut, Target: []byte(`"key"`), Payload: []byte(`{"a":1}`)},
			expected: 1 + 4 + 5 + 7, // Type + TargetLen + Target + Payload
		},
		{
			name:     "Command without target",
			command:  Command{Type: CommandTPutAll, Payload: []byte(`[]`)},
			expected: 1 + 4 + 0 + 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size := tt.command.SizeBytes(); size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{"Put", Command{Type: CommandTPut, Target: []byte(`"key"`), Payload: []byte(`{"a":1}`)}},
		{"Remove without payload", Command{Type: CommandTRemove, Target: []byte(`"key"`)}},
		{"Empty target", Command{Type: CommandTPutAll, Payload: []byte(`[]`)}},
		{"Binary payload", Command{Type: CommandTAddIndex, Target: []byte(`{}`), Payload: []byte{0, 1, 254, 255}}},
		{"Unicode key", Command{Type: CommandTPut, Target: []byte(`"你好世界"`), Payload: []byte(`true`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if got.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", got.Type, tt.command.Type)
			}
			if !bytes.Equal(got.Target, tt.command.Target) {
				t.Errorf("Target mismatch: got %q, want %q", got.Target, tt.command.Target)
			}
			if !bytes.Equal(got.Payload, tt.command.Payload) {
				t.Errorf("Payload mismatch: got %v, want %v", got.Payload, tt.command.Payload)
			}
			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d", tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tooLong := make([]byte, 5)
	tooLong[0] = byte(CommandTPut)
	binary.BigEndian.PutUint32(tooLong[1:5], 1000)

	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{"Empty data", []byte{}, "data too short for command"},
		{"Data too short", []byte{1, 2, 3}, "data too short for command"},
		{"Invalid target length", tooLong, "data too short for target of length 1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)
			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{Type: CommandTInvoke, Target: []byte(`"k"`), Payload: []byte(`{}`)}

	expected := make([]byte, cmd.SizeBytes())
	expected[0] = byte(CommandTInvoke)
	binary.BigEndian.PutUint32(expected[1:5], 3)
	copy(expected[5:8], `"k"`)
	copy(expected[8:], `{}`)

	if serialized := cmd.Serialize(); !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

// TestConstructors checks that every command decodes back into its arguments
func TestConstructors(t *testing.T) {
	age := filter.Property{Name: "age"}
	pred := filter.GreaterThan{Extractor: age, Value: 58.0}

	roundTrip := func(c Command, err error) Command {
		t.Helper()
		if err != nil {
			t.Fatalf("constructor failed: %v", err)
		}
		var out Command
		if err := out.Deserialize(c.Serialize()); err != nil {
			t.Fatalf("Deserialize() error = %v", err)
		}
		return out
	}

	put := roundTrip(NewPut(map[string]any{"id": 1}, []any{"a", 2}))
	if k, _ := put.Key(); !reflect.DeepEqual(k, map[string]any{"id": 1.0}) {
		t.Errorf("unexpected key %v", k)
	}
	if v, _ := put.Value(); !reflect.DeepEqual(v, []any{"a", 2.0}) {
		t.Errorf("unexpected value %v", v)
	}

	all := roundTrip(NewPutAll([]filter.Entry{{Key: "a", Value: 1.0}, {Key: "b", Value: nil}}))
	if es, _ := all.Entries(); len(es) != 2 || es[0].Key != "a" || es[1].Value != nil {
		t.Errorf("unexpected entries %v", es)
	}

	inv := roundTrip(NewInvokeAll(pred, &processor.Increment{Path: "age", Delta: 1}))
	if p, _ := inv.Predicate(); !reflect.DeepEqual(p, pred) {
		t.Errorf("unexpected predicate %#v", p)
	}
	if p, _ := inv.Processor(); !reflect.DeepEqual(p, &processor.Increment{Path: "age", Delta: 1}) {
		t.Errorf("unexpected processor %#v", p)
	}

	idx := roundTrip(NewAddIndex(age, true))
	if x, ordered, _ := idx.Index(); !reflect.DeepEqual(x, age) || !ordered {
		t.Errorf("unexpected index %v ordered=%v", x, ordered)
	}

	if _, err := NewPut(make(chan int), 1); err == nil {
		t.Error("expected unencodable key to fail")
	}
}
