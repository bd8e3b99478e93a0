package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials identify this device to the CRM backend. They are issued once
// at registration and cached; every sync task requires them.
type Credentials struct {
	DeviceID string `json:"device_id" db:"device_id"`
	Token    string `json:"token" db:"token"`
}

// Provider exposes registration credentials to the capture and sync paths.
// Absence of credentials is a permanent condition from the caller's point
// of view; only the separate registration flow can change it.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

var (
	ErrNotRegistered = errors.New("device: not registered")
	ErrInvalidToken  = errors.New("device: invalid token")
)

// ValidateToken rejects malformed or expired device tokens locally, so sync
// tasks fail permanently instead of retrying requests the backend will
// always reject. The signature is the backend's to verify; only structure
// and expiry are checked here.
func ValidateToken(raw string, now time.Time) error {
	if raw == "" {
		return ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp != nil && exp.Before(now) {
		return fmt.Errorf("%w: expired at %s", ErrInvalidToken, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
