package cli

import (
	"github.com/spf13/cobra"
)

func NewVersionCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.opts.Print(struct {
				Version   string `json:"version"`
				BuildDate string `json:"build_date"`
				GitCommit string `json:"git_commit"`
			}{cliVersion, cliBuildDate, cliGitCommit})
		},
	}
}
