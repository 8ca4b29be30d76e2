package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// The pick helpers resolve one option: an explicitly set flag, then a
// non-zero config value, then the flag default.

func pickString(c *cli.Context, name, cfg string) string {
	if c.IsSet(name) || cfg == "" {
		return c.String(name)
	}
	return cfg
}

func pickInt(c *cli.Context, name string, cfg int) int {
	if c.IsSet(name) || cfg == 0 {
		return c.Int(name)
	}
	return cfg
}

// pickIntPtr treats a nil config value as unset so an explicit zero in the
// config file still wins over the flag default.
func pickIntPtr(c *cli.Context, name string, cfg *int) int {
	if c.IsSet(name) || cfg == nil {
		return c.Int(name)
	}
	return *cfg
}

func pickDuration(c *cli.Context, name string, cfg time.Duration) time.Duration {
	if c.IsSet(name) || cfg == 0 {
		return c.Duration(name)
	}
	return cfg
}

// pickBool ORs the flag with the config value. Boolean flags cannot turn a
// config value off.
func pickBool(c *cli.Context, name string, cfg bool) bool {
	return c.Bool(name) || cfg
}
