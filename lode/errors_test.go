package lode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"fs permission", fmt.Errorf("open: %w", os.ErrPermission), ErrPermissionDenied},
		{"fs not exist", fmt.Errorf("open: %w", os.ErrNotExist), ErrNotFound},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"s3 access denied", errors.New("api error AccessDenied: Access Denied"), ErrPermissionDenied},
		{"s3 no bucket", errors.New("api error NoSuchBucket"), ErrNotFound},
		{"disk full", errors.New("write: no space left on device"), ErrDiskFull},
		{"credentials", errors.New("failed to retrieve credentials"), ErrAuth},
		{"network", errors.New("dial tcp 127.0.0.1:9000: connection refused"), ErrNetwork},
		{"other", errors.New("something odd"), ErrStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := WrapWriteError(nil, "packets"); err != nil {
		t.Errorf("WrapWriteError(nil) = %v, want nil", err)
	}
	if err := WrapReadError(nil, "packets"); err != nil {
		t.Errorf("WrapReadError(nil) = %v, want nil", err)
	}
}

func TestStorageError_Chain(t *testing.T) {
	cause := fmt.Errorf("open: %w", os.ErrPermission)
	err := WrapInitError(cause, "packets")

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("expected errors.Is ErrPermissionDenied")
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("expected underlying cause in chain")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatal("expected StorageError")
	}
	if se.Op != "init" || se.Path != "packets" {
		t.Errorf("Op/Path = %q/%q", se.Op, se.Path)
	}
	if got, want := se.Error(), "init packets: permission denied: open: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
