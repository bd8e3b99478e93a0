package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CredentialsRepo is the persistence contract for issued credentials.
type CredentialsRepo interface {
	Load(ctx context.Context) (Credentials, bool, error)
	Save(ctx context.Context, c Credentials) error
}

// RegisterClient performs the one-time backend registration.
type RegisterClient interface {
	Register(ctx context.Context, deviceName string) (Credentials, error)
}

// HeartbeatClient reports device liveness to the backend.
type HeartbeatClient interface {
	Heartbeat(ctx context.Context, c Credentials) error
}

// Manager owns the device's registration lifecycle: register once, cache
// the credentials, hand them out to the capture and sync paths, and keep a
// periodic heartbeat going. Its lifetime is the host process; it is
// initialized explicitly in main, not via a package global.
type Manager struct {
	repo       CredentialsRepo
	client     RegisterClient
	deviceName string
	log        *slog.Logger

	clock func() time.Time

	mu     sync.Mutex
	cached *Credentials

	cron *cron.Cron
}

func NewManager(repo CredentialsRepo, client RegisterClient, deviceName string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		repo:       repo,
		client:     client,
		deviceName: deviceName,
		log:        log,
		clock:      time.Now,
	}
}

// EnsureRegistered registers the device with the backend unless credentials
// already exist. Safe to call repeatedly.
func (m *Manager) EnsureRegistered(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return nil
	}
	creds, ok, err := m.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("device: load credentials: %w", err)
	}
	if ok {
		m.cached = &creds
		return nil
	}

	creds, err = m.client.Register(ctx, m.deviceName)
	if err != nil {
		return fmt.Errorf("device: register: %w", err)
	}
	if creds.DeviceID == "" || creds.Token == "" {
		return fmt.Errorf("device: register: backend returned incomplete credentials")
	}
	if err := m.repo.Save(ctx, creds); err != nil {
		return fmt.Errorf("device: save credentials: %w", err)
	}
	m.cached = &creds
	m.log.Info("device registered", "device_id", creds.DeviceID)
	return nil
}

// Credentials returns the cached credentials, validating the token first.
// ErrNotRegistered and ErrInvalidToken are both non-retryable for callers.
func (m *Manager) Credentials(ctx context.Context) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached == nil {
		creds, ok, err := m.repo.Load(ctx)
		if err != nil {
			return Credentials{}, fmt.Errorf("device: load credentials: %w", err)
		}
		if !ok {
			return Credentials{}, ErrNotRegistered
		}
		m.cached = &creds
	}
	if err := ValidateToken(m.cached.Token, m.clock()); err != nil {
		return Credentials{}, err
	}
	return *m.cached, nil
}

// Owner names the identity call records belong to. An unregistered or
// expired device degrades to an empty owner rather than blocking capture.
func (m *Manager) Owner(ctx context.Context) string {
	creds, err := m.Credentials(ctx)
	if err != nil {
		return ""
	}
	return creds.DeviceID
}

// StartHeartbeat schedules periodic liveness reports. Failures are logged
// and never fatal; an unregistered device skips the beat.
func (m *Manager) StartHeartbeat(schedule string, hb HeartbeatClient) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		creds, err := m.Credentials(ctx)
		if err != nil {
			m.log.Warn("heartbeat skipped", "err", err)
			return
		}
		if err := hb.Heartbeat(ctx, creds); err != nil {
			m.log.Error("heartbeat failed", "err", err)
			return
		}
		m.log.Debug("heartbeat sent", "device_id", creds.DeviceID)
	})
	if err != nil {
		return fmt.Errorf("device: heartbeat schedule %q: %w", schedule, err)
	}
	c.Start()
	m.cron = c
	return nil
}

// StopHeartbeat stops the heartbeat scheduler, waiting for a running beat.
func (m *Manager) StopHeartbeat() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}
