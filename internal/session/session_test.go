package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/repkit/brochuresync/internal/gateway"
	"github.com/repkit/brochuresync/internal/syncerr"
)

// fakeGateway stubs only the session surface.
type fakeGateway struct {
	gateway.Gateway
	result gateway.SessionResult
	err    error
}

func (f *fakeGateway) RegisterSession(ctx context.Context, userID, deviceID, label string) (gateway.SessionResult, error) {
	return f.result, f.err
}

func TestRegisterReportsConflictOnce(t *testing.T) {
	gw := &fakeGateway{result: gateway.SessionResult{
		OK:                  true,
		HasConflict:         true,
		ConflictDeviceLabel: "iPad (office)",
	}}

	info, err := Register(context.Background(), gw, "u1", "dev-1", "Phone")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !info.Superseded || info.SupersededLabel != "iPad (office)" {
		t.Errorf("conflict not surfaced: %+v", info)
	}
	if info.LoginTime.IsZero() || time.Since(info.LoginTime) > time.Minute {
		t.Errorf("unexpected login time: %v", info.LoginTime)
	}
}

func TestRegisterNoConflict(t *testing.T) {
	gw := &fakeGateway{result: gateway.SessionResult{OK: true}}

	info, err := Register(context.Background(), gw, "u1", "dev-1", "Phone")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if info.Superseded {
		t.Error("spurious conflict reported")
	}
}

func TestRegisterRefused(t *testing.T) {
	gw := &fakeGateway{result: gateway.SessionResult{OK: false}}
	if _, err := Register(context.Background(), gw, "u1", "dev-1", "Phone"); err == nil {
		t.Error("expected error for refused registration")
	}
}

func TestRegisterNetworkFailure(t *testing.T) {
	gw := &fakeGateway{err: fmt.Errorf("dial: %w", syncerr.ErrNetworkUnavailable)}
	_, err := Register(context.Background(), gw, "u1", "dev-1", "Phone")
	if err == nil || !syncerr.IsRetryable(err) {
		t.Errorf("expected retryable failure, got %v", err)
	}
}
