package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/wricardo/webpad/pad/codec"
	"github.com/wricardo/webpad/pad/device"
)

// Session is the live binding between one connection and one controller.
type Session struct {
	registry    *Registry
	identity    string
	player      int
	handle      device.Handle
	disconnect  func()
	connectedAt time.Time
	log         logrus.FieldLogger

	applied   atomic.Int64
	lastInput atomic.Int64
	closed    atomic.Bool

	teardownOnce   sync.Once
	disconnectOnce sync.Once
}

// Info is a point-in-time view of a session, safe to hand to other
// goroutines.
type Info struct {
	Identity    string     `json:"identity"`
	Player      int        `json:"player"`
	ConnectedAt time.Time  `json:"connected_at"`
	LastInputAt *time.Time `json:"last_input_at,omitempty"`
	Commands    int64      `json:"commands"`
}

// TeardownResult records what went wrong while releasing a controller.
type TeardownResult struct {
	ResetErr   error
	CommitErr  error
	ReleaseErr error
}

// Err joins the recorded failures, nil if teardown was clean.
func (t TeardownResult) Err() error {
	return errors.Join(t.ResetErr, t.CommitErr, t.ReleaseErr)
}

func newSession(r *Registry, identity string, handle device.Handle, disconnect func()) *Session {
	return &Session{
		registry:    r,
		identity:    identity,
		handle:      handle,
		disconnect:  disconnect,
		connectedAt: time.Now(),
		log:         r.log.WithField("identity", identity),
	}
}

// Identity returns the connection identity.
func (s *Session) Identity() string {
	return s.identity
}

// Player returns the assigned player number.
func (s *Session) Player() int {
	return s.player
}

// Hello returns the handshake payload for the client.
func (s *Session) Hello() codec.Hello {
	return codec.NewHello(s.player)
}

// Closed reports whether teardown has started.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Receive decodes one inbound frame and applies it. Frames the codec
// rejects are dropped; the returned error is always session-fatal.
func (s *Session) Receive(data []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	cmd, err := codec.Decode(data)
	if err != nil {
		s.log.WithError(err).Debug("Ignoring input frame")
		return nil
	}
	return s.Apply(cmd)
}

// Apply stages cmd on the controller and commits the full state. A nil
// command changes nothing and does not commit.
func (s *Session) Apply(cmd codec.Command) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	var err error
	switch c := cmd.(type) {
	case codec.ButtonCommand:
		err = s.handle.SetButton(c.Button, c.Pressed)
	case codec.StickCommand:
		err = s.handle.SetStick(c.Side, c.X, c.Y)
	case codec.TriggerCommand:
		err = s.handle.SetTrigger(c.Side, c.Value)
	default:
		return nil
	}
	if err == nil {
		err = s.handle.Commit()
	}
	if err != nil {
		return oops.In("session").With("player", s.player).
			Wrapf(fmt.Errorf("%w: %w", ErrDeviceCommit, err), "apply %T", cmd)
	}

	s.applied.Add(1)
	s.lastInput.Store(time.Now().UnixNano())
	return nil
}

// Teardown resets and releases the controller, removes the registry entry
// and closes the transport. Only the first call does anything.
func (s *Session) Teardown() {
	s.teardownOnce.Do(func() {
		s.closed.Store(true)

		var result TeardownResult
		result.ResetErr = safely(s.handle.Reset)
		if result.ResetErr == nil {
			// Push the neutral state so nothing stays held on the host.
			result.CommitErr = safely(s.handle.Commit)
		}
		result.ReleaseErr = safely(s.handle.Release)

		s.registry.remove(s)
		s.Disconnect()

		entry := s.log.WithFields(logrus.Fields{
			"commands": s.applied.Load(),
			"duration": time.Since(s.connectedAt).Round(time.Millisecond),
		})
		if err := result.Err(); err != nil {
			entry.WithError(err).Error("Session closed with teardown errors")
			return
		}
		entry.Info("Session closed")
	})
}

// Disconnect asks the transport to close. Safe to call from any goroutine
// and more than once.
func (s *Session) Disconnect() {
	s.disconnectOnce.Do(func() {
		if s.disconnect != nil {
			s.disconnect()
		}
	})
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	info := Info{
		Identity:    s.identity,
		Player:      s.player,
		ConnectedAt: s.connectedAt,
		Commands:    s.applied.Load(),
	}
	if ns := s.lastInput.Load(); ns != 0 {
		t := time.Unix(0, ns)
		info.LastInputAt = &t
	}
	return info
}

// safely runs a driver call, turning a panic into an error so teardown can
// always finish.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.In("device").Errorf("driver panic: %v", r)
		}
	}()
	return fn()
}
