package backend

import (
	"bytes"
	"io"
	"testing"
)

func TestMemoryFileReadWrite(t *testing.T) {
	mf := NewMemoryFile("drive_000.dat", 8192)

	payload := []byte("erasure coded payload")
	if _, err := mf.WriteAt(payload, 4096); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := mf.ReadAt(got, 4096); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read back %q, expected %q", got, payload)
	}

	size, _, err := mf.GetStat()
	if err != nil || size != 8192 {
		t.Errorf("GetStat size %d err %v", size, err)
	}
}

func TestMemoryFileBounds(t *testing.T) {
	mf := NewMemoryFile("drive_001.dat", 16)

	if _, err := mf.WriteAt(make([]byte, 32), 0); err == nil {
		t.Error("write past capacity should fail")
	}
	if _, err := mf.ReadAt(make([]byte, 4), 16); err != io.EOF {
		t.Errorf("read at end expected EOF, got %v", err)
	}

	// short read at the tail reports EOF with partial data
	mf.WriteAt([]byte{0xAB}, 15)
	buf := make([]byte, 4)
	n, err := mf.ReadAt(buf, 15)
	if n != 1 || err != io.EOF {
		t.Errorf("tail read n=%d err=%v", n, err)
	}
	if buf[0] != 0xAB {
		t.Errorf("tail byte %x", buf[0])
	}
}

func TestMemoryFileTruncateZeroes(t *testing.T) {
	mf := NewMemoryFile("drive_002.dat", 64)
	mf.WriteAt(bytes.Repeat([]byte{0xFF}, 64), 0)
	mf.Truncate(32)
	mf.Truncate(64)

	buf := make([]byte, 64)
	mf.ReadAt(buf, 0)
	for i := 32; i < 64; i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d not zeroed after truncate", i)
		}
	}
}
