package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/juicer/cli/render"
	"github.com/pithecene-io/juicer/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version"`
	PayloadContract string `json:"payload_contract"`
	Commit          string `json:"commit"`
}

// VersionCommand returns the version command. It reports the CLI version
// and the payload contract version renderers should expect.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(VersionResponse{
			Version:         types.Version,
			PayloadContract: types.PayloadContractVersion,
			Commit:          commit,
		})
	}
}
