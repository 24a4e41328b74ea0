package kernel

import (
	"sync"

	"github.com/XorTroll/pegasus/domain"
)

// NamedObjectRegistry is the kernel's process-global name -> object
// table, used by svcManageNamedPort and friends so a server can publish
// a KPort under a short string name (e.g. "sm:") for clients to look up
// by svcConnectToNamedPort.
type NamedObjectRegistry struct {
	mu      sync.Mutex
	objects map[string]domain.KObject
}

func newNamedObjectRegistry() *NamedObjectRegistry {
	return &NamedObjectRegistry{objects: make(map[string]domain.KObject)}
}

// Publish registers obj under name, taking a reference on it. Returns
// domain.ResultAlreadyExists if the name is taken.
func (r *NamedObjectRegistry) Publish(name string, obj domain.KObject) domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.objects[name]; exists {
		return domain.ResultAlreadyExists
	}
	obj.IncRef()
	r.objects[name] = obj
	return domain.Success
}

// Lookup returns the object published under name, taking a new
// reference the caller owns.
func (r *NamedObjectRegistry) Lookup(name string) (domain.KObject, domain.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[name]
	if !ok {
		return nil, domain.ResultNotFound
	}
	obj.IncRef()
	return obj, domain.Success
}

// Snapshot returns every published name and the kind of object
// registered under it, without touching reference counts — for
// introspection surfaces (package admin) only.
func (r *NamedObjectRegistry) Snapshot() map[string]domain.ObjectKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.ObjectKind, len(r.objects))
	for name, obj := range r.objects {
		out[name] = obj.Kind()
	}
	return out
}

// Unpublish removes name from the registry, releasing the registry's
// own reference.
func (r *NamedObjectRegistry) Unpublish(name string) domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[name]
	if !ok {
		return domain.ResultNotFound
	}
	delete(r.objects, name)
	obj.DecRef()
	return domain.Success
}
