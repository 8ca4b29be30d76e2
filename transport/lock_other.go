//go:build !windows

package transport

func isSharingViolation(error) bool { return false }
