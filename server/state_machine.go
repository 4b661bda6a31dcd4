// Package server wraps a runtime with the call-ordering rules of the
// lifecycle and routes capability-gated calls.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type lifecycleState uint32

// Handshake moves Init to Ready. A block then runs
// Ready -> Executing -> Executed -> Committing -> Ready. Halted is
// terminal; only reads are served.
const (
	stateInit lifecycleState = iota
	stateReady
	stateExecuting
	stateExecuted
	stateCommitting
	stateHalted
)

var stateNames = [...]string{
	stateInit:       "Init",
	stateReady:      "Ready",
	stateExecuting:  "Executing",
	stateExecuted:   "Executed",
	stateCommitting: "Committing",
	stateHalted:     "Halted",
}

func (s lifecycleState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint32(s))
}

// LifecycleGuard enforces call ordering. Misuse is a programming error
// in the node and panics. ExecuteBlock and Commit hold seqMu from
// Acquire to Complete or Fail, so a block is never executed while the
// previous one is still committing.
type LifecycleGuard struct {
	state         atomic.Uint32
	seqMu         sync.Mutex
	handshakeDone atomic.Bool
}

func NewLifecycleGuard() *LifecycleGuard {
	return &LifecycleGuard{}
}

// State names the current state.
func (g *LifecycleGuard) State() string {
	return g.load().String()
}

func (g *LifecycleGuard) load() lifecycleState {
	return lifecycleState(g.state.Load())
}

func (g *LifecycleGuard) misuse(op string, want lifecycleState) {
	panic(fmt.Sprintf("progchain: %s called in state %s (expected %s)", op, g.load(), want))
}

// enter takes seqMu and moves from to during, or panics.
func (g *LifecycleGuard) enter(op string, from, during lifecycleState) {
	g.seqMu.Lock()
	if g.load() != from {
		g.seqMu.Unlock()
		g.misuse(op, from)
	}
	g.state.Store(uint32(during))
}

// leave moves to the given state and releases seqMu.
func (g *LifecycleGuard) leave(to lifecycleState) {
	g.state.Store(uint32(to))
	g.seqMu.Unlock()
}

func (g *LifecycleGuard) AcquireHandshake() {
	if !g.state.CompareAndSwap(uint32(stateInit), uint32(stateReady)) {
		g.misuse("Handshake", stateInit)
	}
}

// CompleteHandshake opens the guard to concurrent calls.
func (g *LifecycleGuard) CompleteHandshake() { g.handshakeDone.Store(true) }

// FailHandshake returns to Init so the handshake can be retried.
func (g *LifecycleGuard) FailHandshake() { g.state.Store(uint32(stateInit)) }

func (g *LifecycleGuard) AcquireExecute() { g.enter("ExecuteBlock", stateReady, stateExecuting) }

func (g *LifecycleGuard) CompleteExecute() { g.leave(stateExecuted) }

// FailExecute returns to Ready; the block may be executed again.
func (g *LifecycleGuard) FailExecute() { g.leave(stateReady) }

func (g *LifecycleGuard) AcquireCommit() { g.enter("Commit", stateExecuted, stateCommitting) }

func (g *LifecycleGuard) CompleteCommit() { g.leave(stateReady) }

// CheckConcurrent panics before the first successful handshake.
// CheckTx, Query and the optional capabilities call it.
func (g *LifecycleGuard) CheckConcurrent() {
	if !g.handshakeDone.Load() {
		panic("progchain: concurrent call before Handshake completed")
	}
}

// Halt is permanent. It must not be called while seqMu is held by an
// Acquire in progress on another goroutine.
func (g *LifecycleGuard) Halt() { g.state.Store(uint32(stateHalted)) }

func (g *LifecycleGuard) IsHalted() bool { return g.load() == stateHalted }

func (g *LifecycleGuard) IsReady() bool { return g.load() == stateReady }
