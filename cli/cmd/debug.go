package cmd

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/juicer/cli/render"
	"github.com/pithecene-io/juicer/ipc"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/transport"
	"github.com/pithecene-io/juicer/types"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands inspect captured traffic offline. They never modify the
// files they are given.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (decode queue files, parse datagrams)",
		Subcommands: []*cli.Command{
			debugDecodeCommand(),
			debugFrameCommand(),
		},
	}
}

func debugDecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a queue file into its filtered record",
		ArgsUsage: "<file>",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "prefix",
				Usage: "Header bytes to strip (default: chosen from the file name)",
				Value: -1,
			},
		),
		Action: debugDecodeAction,
	}
}

func debugDecodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: juicer debug decode <file>", exitConfigError)
	}
	path := c.Args().First()

	prefix := c.Int("prefix")
	if prefix < 0 {
		prefix = prefixForName(filepath.Base(path))
	}

	data, err := transport.ReadQueueFile(c.Context, path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	rec, err := record.Decode(data, prefix)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(rec.Any())
}

// prefixForName picks the header size from a queue file name. Names that do
// not parse are treated as responses.
func prefixForName(name string) int {
	qf, err := transport.ParseQueueName(name)
	if err == nil && qf.Direction == types.DirectionRequest {
		return defaultRequestPrefix
	}
	return record.FilePrefix
}

// FrameInfo describes one parsed datagram.
type FrameInfo struct {
	Type    string `json:"type"`
	Length  int    `json:"length"`
	Chunks  int    `json:"chunks,omitempty"`
	Payload string `json:"payload,omitempty"`
}

func debugFrameCommand() *cli.Command {
	return &cli.Command{
		Name:      "frame",
		Usage:     "Parse a hex-encoded datagram",
		ArgsUsage: "<hex>",
		Flags:     ReadOnlyFlags(),
		Action:    debugFrameAction,
	}
}

func debugFrameAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: juicer debug frame <hex>", exitConfigError)
	}
	b, err := hex.DecodeString(strings.TrimSpace(c.Args().First()))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid hex: %v", err), exitConfigError)
	}
	frame, err := ipc.ParseDatagram(b)
	if err != nil {
		return fmt.Errorf("invalid datagram: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(FrameInfo{
		Type:    frame.Type.String(),
		Length:  frame.Length,
		Chunks:  frame.Chunks,
		Payload: hex.EncodeToString(frame.Payload),
	})
}
