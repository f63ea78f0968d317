package storage

import (
	"fmt"
	"sync/atomic"

	"github.com/vdatasim/vdatasim/vdsim/storage/backend"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

// Drive is one simulated block device: a fixed-size container plus an online
// flag. Identity and role live in the topology; only the flag and the bytes
// mutate after construction.
type Drive struct {
	Id       topology.DriveId
	Capacity int64

	store  backend.BackendStorageFile
	online int32
}

func newDrive(id topology.DriveId, capacity int64, store backend.BackendStorageFile) *Drive {
	return &Drive{
		Id:       id,
		Capacity: capacity,
		store:    store,
		online:   1,
	}
}

func (d *Drive) IsOnline() bool {
	return atomic.LoadInt32(&d.online) == 1
}

func (d *Drive) setOnline(online bool) {
	if online {
		atomic.StoreInt32(&d.online, 1)
	} else {
		atomic.StoreInt32(&d.online, 0)
	}
}

func (d *Drive) String() string {
	state := "online"
	if !d.IsOnline() {
		state = "offline"
	}
	return fmt.Sprintf("drive %d (%s, %s)", d.Id, d.store.Name(), state)
}
