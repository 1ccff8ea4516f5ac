package device

import (
	"sync"

	"github.com/samber/oops"
)

// MemoryBinding keeps controllers in process. It backs the "memory" driver,
// which is useful when no kernel device is available, and it lets callers
// inject driver failures.
type MemoryBinding struct {
	mu         sync.Mutex
	handles    []*MemoryHandle
	createErr  error
	commitErr  error
	releaseErr error
}

// NewMemoryBinding creates an empty in-process binding.
func NewMemoryBinding() *MemoryBinding {
	return &MemoryBinding{}
}

// Name implements Binding.
func (b *MemoryBinding) Name() string {
	return "memory"
}

// Create implements Binding.
func (b *MemoryBinding) Create() (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.createErr != nil {
		return nil, oops.In("device").With("driver", "memory").Wrapf(b.createErr, "create controller")
	}

	h := &MemoryHandle{binding: b, id: len(b.handles) + 1}
	b.handles = append(b.handles, h)
	return h, nil
}

// FailCreate makes later Create calls return err. A nil err clears it.
func (b *MemoryBinding) FailCreate(err error) {
	b.mu.Lock()
	b.createErr = err
	b.mu.Unlock()
}

// FailCommit makes Commit on every handle return err. A nil err clears it.
func (b *MemoryBinding) FailCommit(err error) {
	b.mu.Lock()
	b.commitErr = err
	b.mu.Unlock()
}

// FailRelease makes Release on every handle return err after unregistering.
func (b *MemoryBinding) FailRelease(err error) {
	b.mu.Lock()
	b.releaseErr = err
	b.mu.Unlock()
}

// Handles returns every handle created so far, in creation order.
func (b *MemoryBinding) Handles() []*MemoryHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]*MemoryHandle, len(b.handles))
	copy(result, b.handles)
	return result
}

// Active returns the number of handles not yet released.
func (b *MemoryBinding) Active() int {
	active := 0
	for _, h := range b.Handles() {
		if !h.Released() {
			active++
		}
	}
	return active
}

func (b *MemoryBinding) injected() (commitErr, releaseErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commitErr, b.releaseErr
}

// MemoryHandle is a controller held by MemoryBinding. Its accessors may be
// called from other goroutines while the owner drives it.
type MemoryHandle struct {
	binding *MemoryBinding
	id      int

	mu        sync.Mutex
	staged    State
	committed State
	commits   int
	released  bool
	releases  int
}

// ID is the 1-based creation index within the binding.
func (h *MemoryHandle) ID() int {
	return h.id
}

func (h *MemoryHandle) SetButton(b Button, pressed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.staged.setButton(b, pressed)
	return nil
}

func (h *MemoryHandle) SetStick(side Side, x, y float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.staged.setStick(side, x, y)
	return nil
}

func (h *MemoryHandle) SetTrigger(side Side, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.staged.setTrigger(side, value)
	return nil
}

func (h *MemoryHandle) Commit() error {
	commitErr, _ := h.binding.injected()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if commitErr != nil {
		return oops.In("device").With("driver", "memory").Wrapf(commitErr, "commit controller %d", h.id)
	}
	h.committed = h.staged
	h.commits++
	return nil
}

func (h *MemoryHandle) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.staged = State{}
	return nil
}

func (h *MemoryHandle) Release() error {
	_, releaseErr := h.binding.injected()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.released = true
	h.releases++
	if releaseErr != nil {
		return oops.In("device").With("driver", "memory").Wrapf(releaseErr, "release controller %d", h.id)
	}
	return nil
}

func (h *MemoryHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.staged
}

// Committed returns the state most recently pushed by Commit.
func (h *MemoryHandle) Committed() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.committed
}

// Commits returns how many commits succeeded.
func (h *MemoryHandle) Commits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commits
}

// Released reports whether Release has run.
func (h *MemoryHandle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Releases returns how many times Release succeeded in unregistering.
func (h *MemoryHandle) Releases() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releases
}
