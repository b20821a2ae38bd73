package serializer

import (
	"testing"

	"github.com/ValentinKolb/dGrid/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	doc := func(n int) []byte {
		b := []byte(`{"data":"`)
		for i := 0; i < n; i++ {
			b = append(b, 'x')
		}
		return append(b, `"}`...)
	}
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"SmallKeyOnly": {
			MsgType: common.MsgTGridGet,
			Key:     []byte(`"k"`),
		},
		"CompositeKey": {
			MsgType: common.MsgTGridGet,
			Key:     []byte(`{"firstName":"John","lastName":"Doe"}`),
		},
		"SmallValue": {
			MsgType: common.MsgTGridPut,
			Key:     []byte(`"key"`),
			Value:   doc(1),
		},
		"LargeValue": {
			MsgType: common.MsgTGridPut,
			Key:     []byte(`"key"`),
			Value:   doc(1024), // 1KB of data
		},
		"VeryLargeValue": {
			MsgType: common.MsgTGridPut,
			Key:     []byte(`"key"`),
			Value:   doc(1024 * 16), // 16KB of data
		},
		"Query": {
			MsgType: common.MsgTGridAggregate,
			Filter:  []byte(`{"op":"and","left":{"op":"gt","extractor":{"op":"property","name":"age"},"value":40},"right":{"op":"eq","extractor":{"op":"property","name":"state"},"value":"MA"}}`),
			Op:      []byte(`{"kind":"avg","extractor":{"op":"property","name":"age"}}`),
		},
		"CompleteMessage": {
			MsgType: common.MsgTLCKAcquire,
			Key:     []byte("complete-test-key"),
			Filter:  []byte(`{"op":"always"}`),
			Op:      []byte(`{"kind":"lock-acquire"}`),
			Name:    "0b0c9e2a-6f59-4bb4-9a57-0e2c7c0f4d59",
			Num:     20000,
			Value:   []byte("test-value-data"),
			Ok:      true,
			Code:    3,
			Err:     "This is a test error message",
			Meta:    []byte("test-meta-data-for-benchmarking"),
		},
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Code:    1,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")

				// Minimal loop to satisfy benchmark requirements
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
