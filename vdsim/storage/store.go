package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/stats"
	"github.com/vdatasim/vdatasim/vdsim/storage/backend"
	"github.com/vdatasim/vdatasim/vdsim/topology"
	"github.com/vdatasim/vdatasim/vdsim/util"
)

var (
	ErrDriveOffline = errors.New("drive is offline")
)

// Store owns the full set of drive containers. One container per global
// drive index; the containers plus the topology configuration are the whole
// persisted state.
//
// Byte-range access per drive is the unit of mutual exclusion: writers take
// the drive's exclusive lock, readers the shared one.
type Store struct {
	conf   topology.Config
	dir    string
	drives []*Drive
	locks  *util.LockTable[topology.DriveId]
}

// ContainerName is the on-disk name for a drive's container.
func ContainerName(id topology.DriveId) string {
	return fmt.Sprintf("drive_%03d.dat", id)
}

// NewDiskStore creates or reopens one container file per drive under dir.
// Reopened containers keep their bytes, so a restart reconstructs the array
// from dir plus the configuration alone.
func NewDiskStore(dir string, conf topology.Config) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %v", dir, err)
	}
	s := &Store{
		conf:  conf,
		dir:   dir,
		locks: util.NewLockTable[topology.DriveId](),
	}
	for i := 0; i < conf.TotalDrives(); i++ {
		id := topology.DriveId(i)
		df, err := backend.CreateDiskFile(filepath.Join(dir, ContainerName(id)), conf.DriveSize)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open container for drive %d: %v", id, err)
		}
		s.drives = append(s.drives, newDrive(id, conf.DriveSize, df))
	}
	stats.DrivesOnline.Set(float64(len(s.drives)))
	glog.V(1).Infof("opened %d drive containers under %s", len(s.drives), dir)
	return s, nil
}

// NewMemoryStore backs every drive with memory. Used by tests and ephemeral
// arrays.
func NewMemoryStore(conf topology.Config) *Store {
	s := &Store{
		conf:  conf,
		locks: util.NewLockTable[topology.DriveId](),
	}
	for i := 0; i < conf.TotalDrives(); i++ {
		id := topology.DriveId(i)
		s.drives = append(s.drives, newDrive(id, conf.DriveSize, backend.NewMemoryFile(ContainerName(id), conf.DriveSize)))
	}
	stats.DrivesOnline.Set(float64(len(s.drives)))
	return s
}

func (s *Store) drive(id topology.DriveId) (*Drive, error) {
	if id < 0 || int(id) >= len(s.drives) {
		return nil, fmt.Errorf("%w: %d of %d", topology.ErrInvalidDrive, id, len(s.drives))
	}
	return s.drives[id], nil
}

// ReadAt reads a byte range from an online drive under its shared lock.
func (s *Store) ReadAt(id topology.DriveId, p []byte, off int64) error {
	d, err := s.drive(id)
	if err != nil {
		return err
	}
	return s.locks.WithSharedLock("read", id, func() error {
		if !d.IsOnline() {
			return fmt.Errorf("%w: drive %d", ErrDriveOffline, id)
		}
		_, err := d.store.ReadAt(p, off)
		return err
	})
}

// WriteAt writes a byte range to an online drive under its exclusive lock.
func (s *Store) WriteAt(id topology.DriveId, p []byte, off int64) error {
	d, err := s.drive(id)
	if err != nil {
		return err
	}
	return s.locks.WithExclusiveLock("write", id, func() error {
		if !d.IsOnline() {
			return fmt.Errorf("%w: drive %d", ErrDriveOffline, id)
		}
		_, err := d.store.WriteAt(p, off)
		return err
	})
}

// RMW reads size bytes at off, lets fn mutate them, and writes the result
// back, all under the drive's exclusive lock. Parity updates use this so no
// concurrent update can interleave with the read-modify-write.
func (s *Store) RMW(id topology.DriveId, off int64, size int, fn func(buf []byte) error) error {
	d, err := s.drive(id)
	if err != nil {
		return err
	}
	return s.locks.WithExclusiveLock("rmw", id, func() error {
		if !d.IsOnline() {
			return fmt.Errorf("%w: drive %d", ErrDriveOffline, id)
		}
		buf := make([]byte, size)
		if _, err := d.store.ReadAt(buf, off); err != nil {
			return err
		}
		if err := fn(buf); err != nil {
			return err
		}
		_, err := d.store.WriteAt(buf, off)
		return err
	})
}

// WriteOffline overwrites a byte range on a drive regardless of its flag.
// Rebuild fills a drive's content before flipping it online.
func (s *Store) WriteOffline(id topology.DriveId, p []byte, off int64) error {
	d, err := s.drive(id)
	if err != nil {
		return err
	}
	return s.locks.WithExclusiveLock("rebuild-write", id, func() error {
		_, err := d.store.WriteAt(p, off)
		return err
	})
}

// Zero wipes a drive's container.
func (s *Store) Zero(id topology.DriveId) error {
	d, err := s.drive(id)
	if err != nil {
		return err
	}
	return s.locks.WithExclusiveLock("zero", id, func() error {
		if err := d.store.Truncate(0); err != nil {
			return err
		}
		return d.store.Truncate(d.Capacity)
	})
}

func (s *Store) IsOnline(id topology.DriveId) bool {
	d, err := s.drive(id)
	if err != nil {
		return false
	}
	return d.IsOnline()
}

// SetDriveOnline flips one drive's flag. It has no other side effect:
// rebuild is always explicit.
func (s *Store) SetDriveOnline(id topology.DriveId, online bool) error {
	d, err := s.drive(id)
	if err != nil {
		return err
	}
	d.setOnline(online)
	s.refreshOnlineGauge()
	glog.V(1).Infof("drive %d set %v", id, onlineWord(online))
	return nil
}

// SetDomainOnline flips every drive in a domain.
func (s *Store) SetDomainOnline(domainId topology.DomainId, online bool) error {
	base := int(domainId) * s.conf.DrivesPerDomain
	if base < 0 || base >= len(s.drives) {
		return fmt.Errorf("%w: domain %d", topology.ErrInvalidDrive, domainId)
	}
	for i := 0; i < s.conf.DrivesPerDomain; i++ {
		s.drives[base+i].setOnline(online)
	}
	s.refreshOnlineGauge()
	glog.V(1).Infof("domain %d set %v", domainId, onlineWord(online))
	return nil
}

func onlineWord(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func (s *Store) refreshOnlineGauge() {
	n := 0
	for _, d := range s.drives {
		if d.IsOnline() {
			n++
		}
	}
	stats.DrivesOnline.Set(float64(n))
}

// OnlineSnapshot captures every drive's flag at one moment, so one
// classification or read never mixes pre- and post-toggle state.
func (s *Store) OnlineSnapshot() []bool {
	flags := make([]bool, len(s.drives))
	for i, d := range s.drives {
		flags[i] = d.IsOnline()
	}
	return flags
}

func (s *Store) DriveCount() int {
	return len(s.drives)
}

func (s *Store) Sync() error {
	for _, d := range s.drives {
		if err := d.store.Sync(); err != nil {
			return fmt.Errorf("sync drive %d: %v", d.Id, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	var firstErr error
	for _, d := range s.drives {
		if d == nil {
			continue
		}
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
