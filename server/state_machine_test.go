package server

import (
	"strings"
	"testing"
)

func ready(t *testing.T) *LifecycleGuard {
	t.Helper()
	g := NewLifecycleGuard()
	g.AcquireHandshake()
	g.CompleteHandshake()
	return g
}

func mustPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", want)
		}
		if msg, _ := r.(string); !strings.Contains(msg, want) {
			t.Fatalf("expected panic containing %q, got %v", want, r)
		}
	}()
	fn()
}

func TestLifecycleGuard_BlockCycle(t *testing.T) {
	g := ready(t)
	for i := 0; i < 3; i++ {
		g.AcquireExecute()
		if g.State() != "Executing" {
			t.Fatalf("cycle %d: expected Executing, got %s", i, g.State())
		}
		g.CompleteExecute()
		g.AcquireCommit()
		if g.State() != "Committing" {
			t.Fatalf("cycle %d: expected Committing, got %s", i, g.State())
		}
		g.CompleteCommit()
		if !g.IsReady() {
			t.Fatalf("cycle %d: expected Ready, got %s", i, g.State())
		}
	}
}

func TestLifecycleGuard_Misuse(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*LifecycleGuard)
		call  func(*LifecycleGuard)
		want  string
	}{
		{
			name: "second handshake",
			call: (*LifecycleGuard).AcquireHandshake,
			want: "Handshake called in state Ready (expected Init)",
		},
		{
			name: "commit without execute",
			call: (*LifecycleGuard).AcquireCommit,
			want: "Commit called in state Ready (expected Executed)",
		},
		{
			name: "execute twice",
			setup: func(g *LifecycleGuard) {
				g.AcquireExecute()
				g.CompleteExecute()
			},
			call: (*LifecycleGuard).AcquireExecute,
			want: "ExecuteBlock called in state Executed (expected Ready)",
		},
		{
			name: "execute after halt",
			setup: func(g *LifecycleGuard) {
				g.Halt()
			},
			call: (*LifecycleGuard).AcquireExecute,
			want: "ExecuteBlock called in state Halted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ready(t)
			if tt.setup != nil {
				tt.setup(g)
			}
			mustPanic(t, tt.want, func() { tt.call(g) })
		})
	}
}

func TestLifecycleGuard_MisuseReleasesLock(t *testing.T) {
	g := ready(t)
	mustPanic(t, "Commit", g.AcquireCommit)

	// A panicking Acquire must not leave seqMu held.
	g.AcquireExecute()
	g.CompleteExecute()
	g.AcquireCommit()
	g.CompleteCommit()
}

func TestLifecycleGuard_ConcurrentCalls(t *testing.T) {
	g := NewLifecycleGuard()
	mustPanic(t, "before Handshake", g.CheckConcurrent)

	g.AcquireHandshake()
	g.CompleteHandshake()
	g.CheckConcurrent()

	g.Halt()
	if !g.IsHalted() || g.State() != "Halted" {
		t.Fatalf("expected Halted, got %s", g.State())
	}
	g.CheckConcurrent()
}

func TestLifecycleGuard_Retries(t *testing.T) {
	g := NewLifecycleGuard()
	if g.State() != "Init" {
		t.Fatalf("expected Init, got %s", g.State())
	}
	g.AcquireHandshake()
	g.FailHandshake()
	if g.State() != "Init" {
		t.Fatalf("expected Init after failed handshake, got %s", g.State())
	}
	g.AcquireHandshake()
	g.CompleteHandshake()

	g.AcquireExecute()
	g.FailExecute()
	if !g.IsReady() {
		t.Fatalf("expected Ready after failed execute, got %s", g.State())
	}
	g.AcquireExecute()
	g.CompleteExecute()
	g.AcquireCommit()
	g.CompleteCommit()
}
