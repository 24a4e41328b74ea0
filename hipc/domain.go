package hipc

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

// DomainCommandType tags what a request on a domain-converted session is
// asking the domain table to do (spec §4.8 "Domains").
type DomainCommandType int

const (
	DomainInvalid DomainCommandType = iota
	DomainSendMessage
	DomainClose
)

// DomainTable owns the sub-objects of a session that has been converted
// to a domain, dispensing small integer ids starting at 1. An id is
// never handed out while it is still live in the table (spec §4.8):
// Close removes it and pushes it onto a free list, and Add reuses the
// most recently freed id before allocating a fresh one. Reuse does not
// wait for the earlier occupant's reference count to reach zero.
type DomainTable struct {
	mu      sync.Mutex
	objects map[uint32]domain.KObject
	nextID  uint32
	free    []uint32
}

func NewDomainTable() *DomainTable {
	return &DomainTable{objects: make(map[uint32]domain.KObject), nextID: 1}
}

// Add installs obj under a fresh (or recycled) domain object id.
func (d *DomainTable) Add(obj domain.KObject) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var id uint32
	if n := len(d.free); n > 0 {
		id = d.free[n-1]
		d.free = d.free[:n-1]
	} else {
		id = d.nextID
		d.nextID++
	}
	obj.IncRef()
	d.objects[id] = obj
	return id
}

// Get resolves id without transferring a new reference.
func (d *DomainTable) Get(id uint32) (domain.KObject, domain.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[id]
	if !ok {
		return nil, domain.ResultDomainObjectNotFound
	}
	return obj, domain.Success
}

// Close deallocates id (spec: "Close deallocates an id without touching
// the OS handle" — i.e. it releases this table's reference but the
// underlying session/object's handle, if any, is untouched).
func (d *DomainTable) Close(id uint32) domain.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[id]
	if !ok {
		return domain.ResultDomainObjectNotFound
	}
	delete(d.objects, id)
	d.free = append(d.free, id)
	obj.DecRef()
	return domain.Success
}
