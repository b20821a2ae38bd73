package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dGrid/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey    uint16 = 1 << 0
	hasFilter uint16 = 1 << 1
	hasOp     uint16 = 1 << 2
	hasName   uint16 = 1 << 3
	hasNum    uint16 = 1 << 4
	hasValue  uint16 = 1 << 5
	hasOk     uint16 = 1 << 6
	hasCode   uint16 = 1 << 7
	hasErr    uint16 = 1 << 8
	hasMeta   uint16 = 1 << 9
)

// headerSize is 1 byte MsgType + 2 bytes flags
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags uint16
	pos := headerSize

	// writeBytes writes a length prefixed field, nil slices are skipped so
	// nil and empty survive the round trip
	writeBytes := func(flag uint16, data []byte) {
		if data == nil {
			return
		}
		flags |= flag
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(data)))
		pos += 4
		pos += copy(result[pos:], data)
	}
	writeUint64 := func(flag uint16, v uint64) {
		if v == 0 {
			return
		}
		flags |= flag
		binary.BigEndian.PutUint64(result[pos:pos+8], v)
		pos += 8
	}

	writeBytes(hasKey, msg.Key)
	writeBytes(hasFilter, msg.Filter)
	writeBytes(hasOp, msg.Op)
	if msg.Name != "" {
		writeBytes(hasName, []byte(msg.Name))
	}
	writeUint64(hasNum, uint64(msg.Num))
	writeBytes(hasValue, msg.Value)
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos++
	}
	writeUint64(hasCode, msg.Code)
	if msg.Err != "" {
		writeBytes(hasErr, []byte(msg.Err))
	}
	writeBytes(hasMeta, msg.Meta)

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	pos := headerSize

	// readBytes reads a length prefixed field into a fresh slice
	readBytes := func(flag uint16, name string) ([]byte, error) {
		if flags&flag == 0 {
			return nil, nil
		}
		if pos+4 > len(data) {
			return nil, fmt.Errorf("data too short for %s length", name)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return nil, fmt.Errorf("data too short for %s data", name)
		}
		out := make([]byte, n)
		copy(out, data[pos:pos+n])
		pos += n
		return out, nil
	}
	readUint64 := func(flag uint16, name string) (uint64, error) {
		if flags&flag == 0 {
			return 0, nil
		}
		if pos+8 > len(data) {
			return 0, fmt.Errorf("data too short for %s", name)
		}
		v := binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}

	var err error
	if msg.Key, err = readBytes(hasKey, "key"); err != nil {
		return err
	}
	if msg.Filter, err = readBytes(hasFilter, "filter"); err != nil {
		return err
	}
	if msg.Op, err = readBytes(hasOp, "op"); err != nil {
		return err
	}
	name, err := readBytes(hasName, "name")
	if err != nil {
		return err
	}
	msg.Name = string(name)
	num, err := readUint64(hasNum, "num")
	if err != nil {
		return err
	}
	msg.Num = int64(num)
	if msg.Value, err = readBytes(hasValue, "value"); err != nil {
		return err
	}

	msg.Ok = false
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for Ok flag")
		}
		msg.Ok = data[pos] != 0
		pos++
	}

	if msg.Code, err = readUint64(hasCode, "code"); err != nil {
		return err
	}
	errBytes, err := readBytes(hasErr, "error")
	if err != nil {
		return err
	}
	msg.Err = string(errBytes)
	if msg.Meta, err = readBytes(hasMeta, "meta"); err != nil {
		return err
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// 4 bytes for length + data
	for _, field := range [][]byte{msg.Key, msg.Filter, msg.Op, msg.Value, msg.Meta} {
		if field != nil {
			size += 4 + len(field)
		}
	}
	if msg.Name != "" {
		size += 4 + len(msg.Name)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Num != 0 {
		size += 8
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Ok {
		size++
	}

	return size
}
