package array

import (
	"fmt"
	"hash/crc32"

	"github.com/vdatasim/vdatasim/vdsim/topology"
	"github.com/vdatasim/vdatasim/vdsim/util"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// FileRecord identifies one ingested file and its place in the logical
// stream. Placement mode is fixed per record for the record's lifetime.
type FileRecord struct {
	Name     string
	Size     uint64
	Checksum uint32
	// HeaderOffset is where the record's length-prefixed header starts in
	// the stream; DataOffset is where the file bytes start.
	HeaderOffset int64
	DataOffset   int64
	Mode         topology.Mode
}

const (
	maxFileNameLen = 4096
	headerFixedLen = 4 + 8 // u32 name length + u64 file size
)

func headerLen(name string) int {
	return headerFixedLen + len(name)
}

// appendHeader writes the length-prefixed file header:
// u32 len(name) + name + u64 size, little endian.
func appendHeader(stream []byte, name string, size uint64) []byte {
	var b [8]byte
	util.Uint32toBytes(b[:4], uint32(len(name)))
	stream = append(stream, b[:4]...)
	stream = append(stream, name...)
	util.Uint64toBytes(b[:8], size)
	return append(stream, b[:8]...)
}

// parseHeader reads a header at the start of buf. A zero or oversized name
// length means padding, not a header.
func parseHeader(buf []byte) (name string, size uint64, consumed int, err error) {
	if len(buf) < headerFixedLen {
		return "", 0, 0, fmt.Errorf("truncated header: %d bytes", len(buf))
	}
	nameLen := int(util.BytesToUint32(buf[:4]))
	if nameLen == 0 || nameLen > maxFileNameLen {
		return "", 0, 0, fmt.Errorf("implausible name length %d", nameLen)
	}
	if len(buf) < headerFixedLen+nameLen {
		return "", 0, 0, fmt.Errorf("truncated header name")
	}
	name = string(buf[4 : 4+nameLen])
	size = util.BytesToUint64(buf[4+nameLen : 4+nameLen+8])
	return name, size, headerFixedLen + nameLen, nil
}

func checksum(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}
