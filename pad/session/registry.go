package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/wricardo/webpad/pad/device"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionClosed        = errors.New("session closed")
	ErrInvalidIdentity      = errors.New("invalid connection identity")
	ErrRegistryClosed       = errors.New("registry shut down")
	ErrDeviceAllocation     = errors.New("device allocation failed")
	ErrDeviceCommit         = errors.New("device commit failed")
)

// Registry tracks the live session of every open connection.
type Registry struct {
	binding device.Binding
	log     logrus.FieldLogger

	mu         sync.Mutex
	sessions   map[string]*Session
	lastPlayer int
	closed     bool

	// open counts registered sessions that have not finished teardown.
	open sync.WaitGroup
}

// NewRegistry creates a registry that allocates controllers from binding.
func NewRegistry(binding device.Binding, logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		binding:  binding,
		log:      logger.WithField("component", "registry"),
		sessions: make(map[string]*Session),
	}
}

// Create allocates a controller for identity and registers a session for
// it. disconnect is called at most once to close the underlying transport.
// On error nothing is registered and no controller is left behind.
func (r *Registry) Create(identity string, disconnect func()) (*Session, error) {
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if _, err := r.Get(identity); err == nil {
		return nil, oops.In("session").With("identity", identity).Wrapf(ErrSessionAlreadyExists, "create session")
	}

	handle, err := r.binding.Create()
	if err != nil {
		return nil, oops.In("session").With("identity", identity).
			Wrapf(fmt.Errorf("%w: %w", ErrDeviceAllocation, err), "create session")
	}

	s := newSession(r, identity, handle, disconnect)
	if _, err := r.register(s); err != nil {
		if releaseErr := safely(handle.Release); releaseErr != nil {
			r.log.WithField("identity", identity).WithError(releaseErr).Error("Failed to release controller of rejected session")
		}
		return nil, oops.In("session").With("identity", identity).Wrapf(err, "create session")
	}

	s.log.WithField("driver", r.binding.Name()).Info("Session opened")
	return s, nil
}

// register assigns the next player number and inserts s. The check, the
// increment and the insert happen under one lock.
func (r *Registry) register(s *Session) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrRegistryClosed
	}
	if _, exists := r.sessions[s.identity]; exists {
		return 0, ErrSessionAlreadyExists
	}

	r.lastPlayer++
	s.player = r.lastPlayer
	s.log = r.log.WithFields(logrus.Fields{
		"component": "session",
		"identity":  s.identity,
		"player":    s.player,
	})
	r.sessions[s.identity] = s
	r.open.Add(1)

	return s.player, nil
}

// Unregister removes the entry for identity. Missing entries are ignored.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[identity]; exists {
		delete(r.sessions, identity)
		r.open.Done()
	}
}

// remove deletes s only if it is still the entry for its identity.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.sessions[s.identity]; exists && current == s {
		delete(r.sessions, s.identity)
		r.open.Done()
	}
}

// Get returns the session registered for identity.
func (r *Registry) Get(identity string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[identity]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// GetByPlayer returns the session that was assigned player.
func (r *Registry) GetByPlayer(player int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.player == player {
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

// List returns a snapshot of every live session ordered by player number.
func (r *Registry) List() []Info {
	r.mu.Lock()
	result := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s.Info())
	}
	r.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Player < result[j].Player
	})
	return result
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// LastPlayer returns the most recently assigned player number, 0 if none.
func (r *Registry) LastPlayer() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPlayer
}

// Disconnect closes the connection of player. Its serving goroutine then
// tears the session down.
func (r *Registry) Disconnect(player int) error {
	s, err := r.GetByPlayer(player)
	if err != nil {
		return err
	}
	s.Disconnect()
	return nil
}

// Shutdown stops accepting sessions, disconnects every live one and waits
// until all of them have finished teardown or ctx ends.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	if len(live) > 0 {
		r.log.WithField("sessions", len(live)).Info("Disconnecting sessions")
	}
	for _, s := range live {
		s.Disconnect()
	}

	done := make(chan struct{})
	go func() {
		r.open.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.In("session").With("remaining", r.Count()).Wrapf(ctx.Err(), "shutdown registry")
	}
}
