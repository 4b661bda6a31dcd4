package progchain

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestHaltError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *HaltError
		want string
	}{
		{"reason only", NewHaltError(42, "account hash mismatch"), "halted at height 42: account hash mismatch"},
		{"with cause", WrapHalt(7, "stored app state unreadable", errors.New("unexpected EOF")), "halted at height 7: stored app state unreadable: unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWrapHalt_Unwraps(t *testing.T) {
	err := fmt.Errorf("handshake: %w", WrapHalt(3, "state unreadable", fs.ErrNotExist))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("expected the cause to be reachable through the halt")
	}
	h, ok := IsHalt(err)
	if !ok || h.Height != 3 {
		t.Fatalf("expected halt at height 3, got %v", err)
	}
	if h.Reason != "state unreadable" {
		t.Errorf("unexpected reason %q", h.Reason)
	}
}

func TestIsHalt(t *testing.T) {
	if h, ok := IsHalt(NewHaltError(10, "divergence")); !ok || h.Height != 10 {
		t.Fatal("expected IsHalt to match a direct halt")
	}
	if _, ok := IsHalt(fmt.Errorf("execute: %w", NewHaltError(10, "divergence"))); !ok {
		t.Fatal("expected IsHalt to unwrap")
	}
	if _, ok := IsHalt(errors.New("just a regular error")); ok {
		t.Fatal("expected IsHalt to return false for a regular error")
	}
	if _, ok := IsHalt(nil); ok {
		t.Fatal("expected IsHalt to return false for nil")
	}
}
