package kernel

import "fmt"

// ProcessID and ThreadID are Stringer wrappers around a KProcess/KThread's
// numeric id, grounded on the teacher's formatter.ContainerID id-rendering
// idiom (state/containerDB.go's log lines take a formatter.ContainerID
// rather than a bare string/int): callers log a typed id consistently
// instead of ad hoc Sprintf calls scattered across the codebase.
type ProcessID uint64

func (id ProcessID) String() string { return fmt.Sprintf("process:%d", uint64(id)) }

// ThreadID is the thread analogue of ProcessID.
type ThreadID uint64

func (id ThreadID) String() string { return fmt.Sprintf("thread:%d", uint64(id)) }
