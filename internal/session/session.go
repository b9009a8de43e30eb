// Package session registers this device as the user's active session
// and reports single-device conflicts.
//
// The server enforces one active session per user: registering here
// invalidates any session held by another device, and the result names
// that device exactly once so the UI can tell the user. There is no
// periodic conflict polling; detection happens only at login.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/repkit/brochuresync/internal/gateway"
)

// Info describes the session established at login.
type Info struct {
	UserID      string
	DeviceID    string
	DeviceLabel string
	LoginTime   time.Time

	// Superseded is set when a different device held the active session
	// and was logged out by this registration. Surface it once.
	Superseded      bool
	SupersededLabel string
}

// Register claims the active session for this user on this device.
func Register(ctx context.Context, gw gateway.Gateway, userID, deviceID, deviceLabel string) (*Info, error) {
	result, err := gw.RegisterSession(ctx, userID, deviceID, deviceLabel)
	if err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("session registration refused for user %s", userID)
	}

	return &Info{
		UserID:          userID,
		DeviceID:        deviceID,
		DeviceLabel:     deviceLabel,
		LoginTime:       time.Now(),
		Superseded:      result.HasConflict,
		SupersededLabel: result.ConflictDeviceLabel,
	}, nil
}
