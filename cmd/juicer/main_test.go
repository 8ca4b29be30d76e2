package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(_ *testing.T) {
	// Must not exit on nil.
	exitErrHandler(nil, nil)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"clean exit", cli.Exit("", 0), 0, ""},
		{"run failed", cli.Exit("run failed: queue vanished", 1), 1, "run failed: queue vanished"},
		{"config error", cli.Exit("--queue-dir is required for the poll transport", 2), 2, "--queue-dir is required for the poll transport"},
		{"not found", cli.Exit("no metrics records found", 3), 3, "no metrics records found"},
		{"wrapped", errors.Join(errors.New("context"), cli.Exit("inner", 42)), 42, "inner"},
		{"regular error", errors.New("boom"), 1, "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
