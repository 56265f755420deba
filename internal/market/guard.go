package market

import "fmt"

// Op names a gated operation for the capability table.
type Op string

const (
	OpStartRound        Op = "round.start"
	OpLockRound         Op = "round.lock"
	OpResolveRound      Op = "round.resolve"
	OpBatchSettle       Op = "settle.batch"
	OpAdmin             Op = "admin"
	OpEmergencyWithdraw Op = "admin.emergency_withdraw"
)

// Guard carries the explicit, composable checks that gate every mutating
// engine operation: a capability table keyed by caller, a global
// operations-suspended flag, and an in-progress marker that rejects
// reentrant calls arriving through transfer callbacks. All methods are
// invoked under the engine's operation lock.
type Guard struct {
	caps       map[string]map[Op]bool
	suspended  bool
	inProgress bool
}

func NewGuard() *Guard {
	return &Guard{caps: make(map[string]map[Op]bool)}
}

// Allow grants a caller the given operations.
func (g *Guard) Allow(caller string, ops ...Op) {
	set := g.caps[caller]
	if set == nil {
		set = make(map[Op]bool)
		g.caps[caller] = set
	}
	for _, op := range ops {
		set[op] = true
	}
}

// Require fails with ErrUnauthorized unless the caller holds the capability.
func (g *Guard) Require(caller string, op Op) error {
	if !g.caps[caller][op] {
		return fmt.Errorf("%w: caller %q lacks %q", ErrUnauthorized, caller, op)
	}
	return nil
}

// RequireActive fails while operations are suspended.
func (g *Guard) RequireActive() error {
	if g.suspended {
		return statef("operations suspended")
	}
	return nil
}

// RequireSuspended gates parameter writes and the emergency path, which are
// only legal while the service is suspended.
func (g *Guard) RequireSuspended() error {
	if !g.suspended {
		return statef("operation requires suspended state")
	}
	return nil
}

// Enter marks an operation in progress. A second Enter before Exit means a
// transfer callback re-entered the engine; the nested call is rejected
// before it can observe intermediate ledger state.
func (g *Guard) Enter() error {
	if g.inProgress {
		return statef("reentrant call rejected")
	}
	g.inProgress = true
	return nil
}

// Exit clears the in-progress marker.
func (g *Guard) Exit() {
	g.inProgress = false
}

// Suspended reports the suspend flag.
func (g *Guard) Suspended() bool { return g.suspended }

// SetSuspended flips the suspend flag.
func (g *Guard) SetSuspended(v bool) { g.suspended = v }
