package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jguan/chatstack/pkg/config"
	"github.com/jguan/chatstack/pkg/deploy"
	"github.com/jguan/chatstack/pkg/infra/docker"
	"github.com/jguan/chatstack/pkg/infra/logger"
	"github.com/jguan/chatstack/pkg/infra/store"
)

func NewStatusCommand(root *RootCommand) *cobra.Command {
	var historyLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the detected installation state and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cli docker.Client
			if sdk, err := docker.NewSDKClient(); err == nil {
				cli = sdk
			} else {
				logger.Warn("docker daemon client unavailable", "error", err)
			}

			detector := deploy.NewDetector(root.cfg.Paths.StackDir, cli)
			state := detector.Detect(cmd.Context())

			out := struct {
				State           string             `json:"state"`
				Reason          string             `json:"reason,omitempty"`
				HasCertMaterial bool               `json:"has_cert_material"`
				ServicesRunning bool               `json:"services_running"`
				History         []deploy.RunRecord `json:"history,omitempty"`
			}{
				State:           state.State.String(),
				Reason:          state.Reason,
				HasCertMaterial: state.HasCertMaterial,
				ServicesRunning: state.ServicesRunning,
				History:         loadRecentRuns(cmd.Context(), root.cfg, historyLimit),
			}

			return root.opts.Print(out)
		},
	}

	cmd.Flags().IntVar(&historyLimit, "history", 5, "Number of recent runs to show")

	return cmd
}

// loadRecentRuns reads the run history, degrading to an empty view with a
// warning when the database cannot be opened or read.
func loadRecentRuns(ctx context.Context, cfg *config.Config, limit int) []deploy.RunRecord {
	history, err := store.Open(filepath.Join(cfg.Paths.DataDir, "chatstack.db"))
	if err != nil {
		logger.Warn("could not open run history", "error", err)
		return nil
	}
	defer history.Close()

	runs, err := history.List(ctx, limit)
	if err != nil {
		logger.Warn("could not list run history", "error", err)
		return nil
	}
	return runs
}
