package base

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{
		[]byte("hello grid"),
		{},
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	go func() {
		for i, p := range payloads {
			if err := writeFrame(client, uint64(100+i), uint64(i+1), p); err != nil {
				t.Errorf("writeFrame %d: %v", i, err)
				return
			}
		}
	}()

	// small buffer forces the allocation path for the large payload
	buf := make([]byte, 64)
	for i, p := range payloads {
		shardID, requestID, data, err := readFrame(server, buf)
		if err != nil {
			t.Fatalf("readFrame %d: %v", i, err)
		}
		if shardID != uint64(100+i) || requestID != uint64(i+1) {
			t.Errorf("frame %d: got shard %d request %d", i, shardID, requestID)
		}
		if !bytes.Equal(data, p) {
			t.Errorf("frame %d: payload mismatch (%d vs %d bytes)", i, len(data), len(p))
		}
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header[16:20], maxFrameSize+1)

	if _, _, _, err := readFrame(bytes.NewReader(header), nil); err == nil {
		t.Fatal("expected an error for an oversized frame")
	}
}

func TestReadFrameTruncated(t *testing.T) {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header[16:20], 10)
	data := append(header, 'a', 'b')

	if _, _, _, err := readFrame(bytes.NewReader(data), nil); err == nil {
		t.Fatal("expected an error for a truncated payload")
	}
}
