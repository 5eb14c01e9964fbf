package driver

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("empty command should not validate")
	}
	if err := (Config{Command: "   "}).Validate(); err == nil {
		t.Error("blank command should not validate")
	}
	if err := (Config{Command: "/usr/bin/driver"}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Command: "/usr/bin/driver"}.withDefaults()
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("unexpected default timeout: %v", cfg.ConnectTimeout)
	}
	if cfg.Logger == nil {
		t.Error("nil logger should default to discard")
	}
}

func TestLaunch_RejectsInvalidConfig(t *testing.T) {
	if _, err := Launch(context.Background(), Config{}); err == nil {
		t.Error("Launch should reject a config without a command")
	}
}

func TestAttach_RequiresEndpoint(t *testing.T) {
	if _, err := Attach(context.Background(), "", Config{}); err == nil {
		t.Error("Attach should reject an empty endpoint")
	}
}

func TestManager_SessionBookkeeping(t *testing.T) {
	m := NewManager(Config{Command: "/usr/bin/driver"})

	if _, ok := m.GetSession("missing"); ok {
		t.Error("unknown session should not resolve")
	}
	if err := m.CloseSession("missing"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}

	// Seed a session directly; launching a real driver is out of scope here.
	m.sessions["seeded"] = nil
	if _, _, err := m.CreateSession(context.Background(), "seeded"); err == nil {
		t.Error("duplicate session id should be rejected")
	}
	if err := m.CloseSession("seeded"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("closing a nil session should report ErrSessionClosed, got %v", err)
	}
	if _, ok := m.GetSession("seeded"); ok {
		t.Error("closed session should be removed")
	}
}

func TestManager_NilSafety(t *testing.T) {
	var m *Manager
	if _, ok := m.GetSession("x"); ok {
		t.Error("nil manager should resolve nothing")
	}
	if err := m.CloseSession("x"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("nil Close should be a no-op, got %v", err)
	}
}
