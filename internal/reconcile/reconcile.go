// Package reconcile holds the pure decision logic of the sync engine:
// given the local timestamp, the server timestamp, and the local dirty
// flag, decide whether to push, pull, or do nothing.
//
// The policy is last-writer-wins at whole-document granularity. Local
// edits always win over an unknown server state: a dirty document is
// pushed even when the server copy is newer, and whatever edit produced
// that newer copy is overwritten. There is no field-level merge; two
// devices editing the same document while both offline will lose the
// earlier push. That limitation is deliberate and kept visible rather
// than papered over here.
package reconcile

import "time"

// DefaultThreshold is the minimum remote-ahead delta considered a real
// change. Smaller gaps are treated as clock skew between writers and
// ignored, so reconciliation cannot flap on clock noise.
const DefaultThreshold = 5 * time.Second

// Action is the outcome of one document's reconciliation decision.
type Action int

const (
	// ActionNone means the replicas are considered in agreement.
	ActionNone Action = iota
	// ActionPush means local content must be upserted to the server.
	ActionPush
	// ActionPull means the server copy must replace local content
	// wholesale.
	ActionPull
)

// String returns a human-readable representation of the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPush:
		return "push"
	case ActionPull:
		return "pull"
	default:
		return "unknown"
	}
}

// Decide returns the action for one document.
//
// The dirty check runs strictly before any timestamp comparison: a
// document with unpushed local edits is pushed regardless of how the
// timestamps compare. For clean documents the server copy wins only
// when it is ahead by more than threshold; a threshold <= 0 uses
// DefaultThreshold.
func Decide(localTS, remoteTS time.Time, remoteExists, dirty bool, threshold time.Duration) Action {
	if dirty {
		return ActionPush
	}
	if !remoteExists {
		return ActionNone
	}
	if !remoteTS.After(localTS) {
		return ActionNone
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if remoteTS.Sub(localTS) > threshold {
		return ActionPull
	}
	return ActionNone
}
