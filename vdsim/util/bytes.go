package util

import "fmt"

// BytesToHumanReadable returns the converted human readable representation of the bytes.
func BytesToHumanReadable(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}

	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.2f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// little endian, matching the on-drive stream framing

func Uint32toBytes(b []byte, v uint32) {
	for i := uint(0); i < 4; i++ {
		b[i] = byte(v >> (i * 8))
	}
}

func BytesToUint32(b []byte) (v uint32) {
	for i := uint(0); i < 4; i++ {
		v += uint32(b[i]) << (i * 8)
	}
	return
}

func Uint64toBytes(b []byte, v uint64) {
	for i := uint(0); i < 8; i++ {
		b[i] = byte(v >> (i * 8))
	}
}

func BytesToUint64(b []byte) (v uint64) {
	for i := uint(0); i < 8; i++ {
		v += uint64(b[i]) << (i * 8)
	}
	return
}
