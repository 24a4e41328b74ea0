// Package admin is an optional host-side introspection surface over a
// running Kernel: list live processes, their threads (state, priority,
// core), open handles, and published named ports (spec "Persisted
// state" collaborator contract §1, SPEC_FULL.md's supplemented-features
// admin surface). Errors use the teacher's grpc-status wrapping idiom
// (state/containerDB.go) even though this package exposes plain Go
// methods rather than a generated gRPC service — the wrapping makes the
// error values usable as-is if this surface is later fronted by an
// actual grpc.Server.
package admin

import (
	"fmt"

	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"

	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
)

// Service is the introspection surface, bound to one Kernel instance.
type Service struct {
	kernel *kernel.Kernel
}

// New returns a Service bound to k.
func New(k *kernel.Kernel) *Service {
	return &Service{kernel: k}
}

// ProcessInfo summarizes one live process.
type ProcessInfo struct {
	ID         uint64
	Name       string
	State      kernel.ProcessState
	ThreadCount int
	HandleCount int
}

// ListProcesses returns a summary of every live process.
func (s *Service) ListProcesses() []ProcessInfo {
	procs := s.kernel.AllProcesses()
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, ProcessInfo{
			ID:          p.ID(),
			Name:        p.Name(),
			State:       p.State(),
			ThreadCount: len(p.Threads()),
			HandleCount: p.Handles().Count(),
		})
	}
	return out
}

// ThreadInfo summarizes one thread.
type ThreadInfo struct {
	ID         uint64
	Name       string
	State      kernel.ThreadState
	Priority   int
	ActiveCore int
}

// ListThreads returns every thread belonging to processID, or a NotFound
// grpc-status error if no such process is live.
func (s *Service) ListThreads(processID uint64) ([]ThreadInfo, error) {
	p, ok := s.kernel.ProcessByID(processID)
	if !ok {
		return nil, grpcStatus.Errorf(grpcCodes.NotFound, "process %d not found", processID)
	}
	threads := p.Threads()
	out := make([]ThreadInfo, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadInfo{
			ID:         t.ID(),
			Name:       t.Name(),
			State:      t.State(),
			Priority:   t.Priority(),
			ActiveCore: t.ActiveCore(),
		})
	}
	return out, nil
}

// ListHandles returns every open handle in processID's handle table, or a
// NotFound grpc-status error if no such process is live.
func (s *Service) ListHandles(processID uint64) ([]kernel.HandleInfo, error) {
	p, ok := s.kernel.ProcessByID(processID)
	if !ok {
		return nil, grpcStatus.Errorf(grpcCodes.NotFound, "process %d not found", processID)
	}
	return p.Handles().Snapshot(), nil
}

// NamedPortInfo summarizes one published named object (almost always a
// KServerPort — sm's own "sm:" port, or any service it has registered).
type NamedPortInfo struct {
	Name string
	Kind domain.ObjectKind
}

// ListNamedPorts returns every object published in the kernel's
// process-global named-object registry.
func (s *Service) ListNamedPorts() []NamedPortInfo {
	snap := s.kernel.Named().Snapshot()
	out := make([]NamedPortInfo, 0, len(snap))
	for name, kind := range snap {
		out = append(out, NamedPortInfo{Name: name, Kind: kind})
	}
	return out
}

// Describe renders a human-readable one-line summary of processID,
// wrapping the NotFound case the way the teacher's containerDB wraps
// lookup failures.
func (s *Service) Describe(processID uint64) (string, error) {
	p, ok := s.kernel.ProcessByID(processID)
	if !ok {
		return "", grpcStatus.Errorf(grpcCodes.NotFound, "process %d not found", processID)
	}
	return fmt.Sprintf("%s (pid=%d, state=%v, threads=%d, handles=%d)",
		p.Name(), p.ID(), p.State(), len(p.Threads()), p.Handles().Count()), nil
}
