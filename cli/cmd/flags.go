// Package cmd provides CLI commands for the juicer binary.
package cmd

import (
	"context"
	"fmt"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/juicer/lode"
)

// FormatFlag selects output format for read-only commands: json, table, yaml.
var FormatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Usage:   "Output format: json, table, yaml",
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag}
}

// StorageFlags returns the flags that locate a Lode store.
// run uses them to write, stats to read back.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3"},
		&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "storage-dataset", Usage: "Packet archive dataset ID (default: \"packets\")"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend (optional, uses default chain)"},
		&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint for S3-compatible providers"},
		&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Force path-style S3 addressing"},
	}
}

// storageChoice is a resolved storage location.
type storageChoice struct {
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

func storageFromFlags(c *cli.Context) storageChoice {
	return storageChoice{
		backend:   c.String("storage-backend"),
		path:      c.String("storage-path"),
		dataset:   c.String("storage-dataset"),
		region:    c.String("storage-region"),
		endpoint:  c.String("storage-endpoint"),
		pathStyle: c.Bool("storage-s3-path-style"),
	}
}

// enabled reports whether a store was configured at all.
func (s storageChoice) enabled() bool {
	return s.path != ""
}

// factory builds the Lode store factory for the chosen backend.
func (s storageChoice) factory(ctx context.Context) (lodelib.StoreFactory, error) {
	switch s.backend {
	case "fs", "":
		return lodelib.NewFSFactory(s.path), nil
	case "s3":
		bucket, prefix := lode.ParseS3Path(s.path)
		return lode.NewS3Factory(ctx, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       s.region,
			Endpoint:     s.endpoint,
			UsePathStyle: s.pathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}
