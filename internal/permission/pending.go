package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PendingRequest is a snapshot of one outstanding permission request,
// returned to the host by Agent.GetPendingPermissions.
type PendingRequest struct {
	ID      string
	Context ToolPermissionContext
}

type pendingEntry struct {
	req    PendingRequest
	result chan PermissionDecision
}

// PendingRegistry mediates asynchronous permission decisions: a host
// that wants to drive a UI affordance (rather than blocking its own
// CanUseTool callback on user input synchronously) can pass
// Registry.Request as the Gate's canUseTool callback, then surface
// List()/Resolve() through the Agent's GetPendingPermissions/
// ResolvePermissionRequest/ClearPendingPermissions API (SPEC_FULL.md §6).
type PendingRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
}

// NewPendingRegistry returns an empty registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{pending: make(map[string]*pendingEntry)}
}

// Request registers tpc as pending and blocks until Resolve is called
// for its id, or ctx is canceled (in which case the request resolves
// deny with reason "aborted").
func (r *PendingRegistry) Request(ctx context.Context, tpc ToolPermissionContext) PermissionDecision {
	id := uuid.NewString()
	entry := &pendingEntry{req: PendingRequest{ID: id, Context: tpc}, result: make(chan PermissionDecision, 1)}

	r.mu.Lock()
	r.pending[id] = entry
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	select {
	case decision := <-entry.result:
		return decision
	case <-ctx.Done():
		return PermissionDecision{Behavior: "deny", Message: "aborted"}
	}
}

// List returns a snapshot of every currently outstanding request.
func (r *PendingRegistry) List() []PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingRequest, 0, len(r.pending))
	for _, e := range r.pending {
		out = append(out, e.req)
	}
	return out
}

// Resolve delivers decision to the request with id, unblocking its
// Request call. Returns an error if no such request is pending.
func (r *PendingRegistry) Resolve(id string, decision PermissionDecision) error {
	r.mu.Lock()
	entry, ok := r.pending[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("permission: no pending request %s", id)
	}
	entry.result <- decision
	return nil
}

// Clear force-denies every outstanding request (used when the Agent is
// destroyed or a turn is aborted with requests still unresolved).
func (r *PendingRegistry) Clear() {
	r.mu.Lock()
	entries := make([]*pendingEntry, 0, len(r.pending))
	for _, e := range r.pending {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		select {
		case e.result <- PermissionDecision{Behavior: "deny", Message: "cleared"}:
		default:
		}
	}
}
