// Package serializer turns common.Message values into bytes and back. Every
// grid member and client of one deployment must agree on the serializer; it is
// selected with the --serializer flag.
//
// Implementations:
//
//   - binary: hand-written codec. A flag byte marks which Message fields
//     follow, so absent fields cost nothing. Fastest and smallest, the default.
//
//   - msgpack: vmihailenco/msgpack. Close to binary in size but reflection
//     based. Use it when clients outside Go talk to the grid.
//
//   - json: readable on the wire, handy with the http transport and curl.
//
//   - gob: works, but loses to binary and json on every benchmark.
//
// Documents (keys, values, predicates, processors) travel as JSON inside the
// Message payload fields whatever serializer frames the Message.
//
// Serializers hold no state and are safe for concurrent use:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(msg)
//	...
//	var resp common.Message
//	err = s.Deserialize(data, &resp)
package serializer
