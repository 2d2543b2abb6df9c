package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

// OpType represents the type of journal record
type OpType byte

const (
	// OpBegin marks the start of a multi-step engine operation
	OpBegin OpType = 1

	// OpCommit marks an operation whose metadata write succeeded
	OpCommit OpType = 2

	// OpAbort marks an operation that failed or was rolled back by recovery
	OpAbort OpType = 3

	// OpCheckpoint marks a point before which nothing is pending
	OpCheckpoint OpType = 4
)

const (
	// EntryHeaderSize is the fixed size of the entry header
	// Layout: LSN(8) + OpID(16) + OpType(1) + Reserved(3) + AssetLen(4) + PayloadLen(4) + Timestamp(8)
	EntryHeaderSize = 44

	offAssetLen   = 28
	offPayloadLen = 32
	offTimestamp  = 36
)

// Entry is one journal record
type Entry struct {
	LSN       uint64    // Log Sequence Number (monotonically increasing)
	OpID      uuid.UUID // Engine operation the record belongs to
	OpType    OpType
	Asset     string // asset directory the operation mutates
	Payload   []byte // operation details, only on OpBegin
	Timestamp time.Time
}

// Encode serializes the entry to bytes with CRC32 checksum
// Format: [Header(44)] [Asset] [Payload] [CRC32(4)]
func (e *Entry) Encode() []byte {
	assetLen := len(e.Asset)
	payloadLen := len(e.Payload)
	buf := make([]byte, e.Size())

	binary.LittleEndian.PutUint64(buf[0:8], e.LSN)
	copy(buf[8:24], e.OpID[:])
	buf[24] = byte(e.OpType)
	binary.LittleEndian.PutUint32(buf[offAssetLen:offAssetLen+4], uint32(assetLen))
	binary.LittleEndian.PutUint32(buf[offPayloadLen:offPayloadLen+4], uint32(payloadLen))
	binary.LittleEndian.PutUint64(buf[offTimestamp:offTimestamp+8], uint64(e.Timestamp.Unix()))

	offset := EntryHeaderSize
	copy(buf[offset:], e.Asset)
	offset += assetLen
	copy(buf[offset:], e.Payload)
	offset += payloadLen

	crc := crc32.ChecksumIEEE(buf[:offset])
	binary.LittleEndian.PutUint32(buf[offset:offset+4], crc)

	return buf
}

// bodyLen returns the number of bytes following a header
func bodyLen(header []byte) int {
	assetLen := binary.LittleEndian.Uint32(header[offAssetLen : offAssetLen+4])
	payloadLen := binary.LittleEndian.Uint32(header[offPayloadLen : offPayloadLen+4])
	return int(assetLen) + int(payloadLen) + 4
}

// DecodeEntry deserializes a journal entry from bytes
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < EntryHeaderSize+4 {
		return nil, ErrTruncated
	}
	if len(data) < EntryHeaderSize+bodyLen(data) {
		return nil, ErrTruncated
	}

	dataLen := len(data)
	storedCRC := binary.LittleEndian.Uint32(data[dataLen-4:])
	if storedCRC != crc32.ChecksumIEEE(data[:dataLen-4]) {
		return nil, ErrCorrupted
	}

	entry := &Entry{
		LSN:    binary.LittleEndian.Uint64(data[0:8]),
		OpType: OpType(data[24]),
	}
	copy(entry.OpID[:], data[8:24])
	if entry.OpType < OpBegin || entry.OpType > OpCheckpoint {
		return nil, ErrInvalidEntry
	}

	assetLen := int(binary.LittleEndian.Uint32(data[offAssetLen : offAssetLen+4]))
	payloadLen := int(binary.LittleEndian.Uint32(data[offPayloadLen : offPayloadLen+4]))
	entry.Timestamp = time.Unix(int64(binary.LittleEndian.Uint64(data[offTimestamp:offTimestamp+8])), 0)

	offset := EntryHeaderSize
	entry.Asset = string(data[offset : offset+assetLen])
	offset += assetLen
	if payloadLen > 0 {
		entry.Payload = make([]byte, payloadLen)
		copy(entry.Payload, data[offset:offset+payloadLen])
	}

	return entry, nil
}

// Size returns the encoded size of the entry
func (e *Entry) Size() int {
	return EntryHeaderSize + len(e.Asset) + len(e.Payload) + 4
}

func (t OpType) String() string {
	switch t {
	case OpBegin:
		return "BEGIN"
	case OpCommit:
		return "COMMIT"
	case OpAbort:
		return "ABORT"
	case OpCheckpoint:
		return "CHECKPOINT"
	}
	return "UNKNOWN"
}

// String returns a human-readable representation of the entry
func (e *Entry) String() string {
	return fmt.Sprintf("WAL[LSN=%d Op=%s ID=%s Asset=%s PayloadLen=%d]",
		e.LSN, e.OpType, e.OpID, e.Asset, len(e.Payload))
}
