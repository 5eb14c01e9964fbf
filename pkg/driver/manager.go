package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionClosed is returned when a session is unknown or already closed.
var ErrSessionClosed = errors.New("driver: session closed")

// Manager tracks named driver sessions so callers can run several driver
// processes side by side.
type Manager struct {
	cfg      Config
	sessions map[string]*Driver
	mu       sync.Mutex
}

// NewManager creates a Manager that launches drivers with the given base
// config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Driver),
	}
}

// CreateSession launches a new driver under the given id. An empty id gets a
// generated one. The id is returned alongside the driver.
func (m *Manager) CreateSession(ctx context.Context, id string) (string, *Driver, error) {
	if m == nil {
		return "", nil, ErrSessionClosed
	}
	if id == "" {
		id = uuid.NewString()
	}
	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return "", nil, fmt.Errorf("session already exists: %s", id)
	}
	m.mu.Unlock()

	d, err := Launch(ctx, m.cfg)
	if err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	m.sessions[id] = d
	m.mu.Unlock()
	return id, d, nil
}

// GetSession returns a session by id.
func (m *Manager) GetSession(id string) (*Driver, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.sessions[id]
	return d, ok
}

// CloseSession closes and removes a session.
func (m *Manager) CloseSession(id string) error {
	if m == nil {
		return ErrSessionClosed
	}
	m.mu.Lock()
	d, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok || d == nil {
		return ErrSessionClosed
	}
	return d.Close()
}

// Close shuts every session down.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	sessions := make([]*Driver, 0, len(m.sessions))
	for _, d := range m.sessions {
		sessions = append(sessions, d)
	}
	m.sessions = make(map[string]*Driver)
	m.mu.Unlock()

	var lastErr error
	for _, d := range sessions {
		if err := d.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
