package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vdatasim/vdatasim/vdsim/topology"
)

func testConf() topology.Config {
	return topology.Config{
		DomainCount:         3,
		DrivesPerDomain:     8,
		GroupSizes:          []int{4},
		SpareCount:          2,
		DriveSize:           64 * 1024,
		ChunkSize:           4096,
		HAEligiblePerDomain: 2,
	}
}

func TestOfflineDriveRejectsAccess(t *testing.T) {
	s := NewMemoryStore(testConf())
	defer s.Close()

	if err := s.WriteAt(3, []byte("abc"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	s.SetDriveOnline(3, false)

	if err := s.ReadAt(3, make([]byte, 3), 0); !errors.Is(err, ErrDriveOffline) {
		t.Errorf("read offline drive err = %v", err)
	}
	if err := s.WriteAt(3, []byte("abc"), 0); !errors.Is(err, ErrDriveOffline) {
		t.Errorf("write offline drive err = %v", err)
	}
	// rebuild path may still fill the container
	if err := s.WriteOffline(3, []byte("abc"), 0); err != nil {
		t.Errorf("WriteOffline: %v", err)
	}

	s.SetDriveOnline(3, true)
	buf := make([]byte, 3)
	if err := s.ReadAt(3, buf, 0); err != nil || string(buf) != "abc" {
		t.Errorf("read back %q err %v", buf, err)
	}
}

func TestSetDomainOnline(t *testing.T) {
	conf := testConf()
	s := NewMemoryStore(conf)
	defer s.Close()

	s.SetDomainOnline(1, false)
	flags := s.OnlineSnapshot()
	for i := 0; i < conf.TotalDrives(); i++ {
		inDomain := i/conf.DrivesPerDomain == 1
		if flags[i] == inDomain {
			t.Errorf("drive %d online=%v after domain 1 failure", i, flags[i])
		}
	}

	s.SetDomainOnline(1, true)
	for i, online := range s.OnlineSnapshot() {
		if !online {
			t.Errorf("drive %d still offline", i)
		}
	}
}

func TestRMW(t *testing.T) {
	s := NewMemoryStore(testConf())
	defer s.Close()

	if err := s.WriteAt(0, []byte{1, 2, 3, 4}, 100); err != nil {
		t.Fatal(err)
	}
	err := s.RMW(0, 100, 4, func(buf []byte) error {
		for i := range buf {
			buf[i] ^= 0xFF
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RMW: %v", err)
	}
	got := make([]byte, 4)
	s.ReadAt(0, got, 100)
	if !bytes.Equal(got, []byte{0xFE, 0xFD, 0xFC, 0xFB}) {
		t.Errorf("after RMW got %v", got)
	}
}

func TestInvalidDriveIndex(t *testing.T) {
	s := NewMemoryStore(testConf())
	defer s.Close()

	if err := s.ReadAt(topology.DriveId(s.DriveCount()), make([]byte, 1), 0); !errors.Is(err, topology.ErrInvalidDrive) {
		t.Errorf("out of range read err = %v", err)
	}
	if err := s.SetDriveOnline(-1, false); !errors.Is(err, topology.ErrInvalidDrive) {
		t.Errorf("out of range toggle err = %v", err)
	}
}

func TestDiskStorePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "array")
	conf := testConf()

	s, err := NewDiskStore(dir, conf)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	payload := []byte("survives reopen")
	if err := s.WriteAt(5, payload, 4096); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// containers are named by global drive index
	if _, err := os.Stat(filepath.Join(dir, "drive_005.dat")); err != nil {
		t.Fatalf("container missing: %v", err)
	}

	s2, err := NewDiskStore(dir, conf)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got := make([]byte, len(payload))
	if err := s2.ReadAt(5, got, 4096); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("after reopen got %q", got)
	}
}
