package run

import (
	"sync"

	"github.com/fundwit/go-commons/types"
)

// mutation of one instance is strictly serialized: an in-process mutex per
// instance id, backed by the lock_version CAS column for writers in other
// processes.
var (
	instanceLocksMutex sync.Mutex
	instanceLocks      = map[types.ID]*sync.Mutex{}
)

func lockInstance(id types.ID) func() {
	instanceLocksMutex.Lock()
	lock, found := instanceLocks[id]
	if !found {
		lock = &sync.Mutex{}
		instanceLocks[id] = lock
	}
	instanceLocksMutex.Unlock()

	lock.Lock()
	return lock.Unlock
}
