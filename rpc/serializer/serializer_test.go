package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/processor"
	"github.com/ValentinKolb/dGrid/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"GOB":     NewGOBSerializer,
	"Binary":  NewBinarySerializer,
	"Msgpack": NewMsgpackSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages(t *testing.T) []common.Message {
	put, err := common.NewPutRequest("test-key", map[string]any{"age": 42})
	if err != nil {
		t.Fatal(err)
	}
	invokeAll, err := common.NewInvokeAllRequest(
		filter.GreaterThan{Extractor: filter.Property{Name: "age"}, Value: 40.0},
		&processor.Increment{Path: "age", Delta: 1},
	)
	if err != nil {
		t.Fatal(err)
	}

	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Built requests
		*put,
		*invokeAll,

		// Get response
		{
			MsgType: common.MsgTGridGet,
			Key:     []byte(`"test-key"`),
			Value:   []byte(`{"age":42}`),
			Ok:      true,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Code:    5,
			Err:     "test error message",
		},

		// Negative numbers survive
		{
			MsgType: common.MsgTEvtPoll,
			Name:    "handle",
			Num:     -1,
		},

		// Message with all fields filled
		{
			MsgType: common.MsgTLCKAcquire,
			Key:     []byte("test-lock-key"),
			Filter:  []byte(`{"op":"always"}`),
			Op:      []byte(`{"kind":"remove"}`),
			Name:    "owner",
			Num:     30000,
			Value:   []byte("test-lock-value"),
			Ok:      true,
			Code:    7,
			Err:     "partial failure",
			Meta:    []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages(t)

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestPayloadsSurvive checks that the JSON payloads still decode after a round trip
func TestPayloadsSurvive(t *testing.T) {
	req, err := common.NewInvokeRequest(map[string]any{"id": 1}, &processor.Update{Path: "a.b", Value: "x"})
	if err != nil {
		t.Fatal(err)
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(*req)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			key, err := result.KeyDoc()
			if err != nil || !reflect.DeepEqual(key, map[string]any{"id": 1.0}) {
				t.Errorf("Key mismatch: %v (%v)", key, err)
			}
			proc, err := result.Processor()
			if err != nil {
				t.Fatalf("Failed to decode processor: %v", err)
			}
			if u, ok := proc.(*processor.Update); !ok || u.Path != "a.b" || u.Value != "x" {
				t.Errorf("Processor mismatch: %#v", proc)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty slices and zero values",
			msg: common.Message{
				MsgType: common.MsgTGridPut,
				Key:     []byte{},
				Filter:  []byte{},
				Op:      []byte{},
				Value:   []byte{},
				Meta:    []byte{},
			},
		},
		{
			name: "Message with Ok=true only",
			msg: common.Message{
				MsgType: common.MsgTGridGet,
				Ok:      true,
			},
		},
		{
			name: "Message with empty value slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTGridPut,
				Key:     []byte(`"test"`),
				Value:   []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// The binary format keeps nil and empty slices apart
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message mismatch:\nOriginal: %#v\nResult: %#v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and half the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 0x20, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Missing num",
			data:        []byte{1, 0, 0x10, 0, 0, 0}, // Num flag but only 3 bytes
			expectError: true,
		},
		{
			name:        "Missing ok byte",
			data:        []byte{1, 0, 0x40},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
