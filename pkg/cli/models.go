package cli

import (
	"github.com/spf13/cobra"

	"github.com/jguan/chatstack/pkg/catalog"
	"github.com/jguan/chatstack/pkg/infra/hal"
	"github.com/jguan/chatstack/pkg/infra/hal/nvidia"
	"github.com/jguan/chatstack/pkg/infra/hal/system"
)

func NewModelsCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Model compatibility checks",
	}

	cmd.AddCommand(newModelsRecommendCommand(root))
	cmd.AddCommand(newModelsCheckCommand(root))

	return cmd
}

func newModelsRecommendCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Recommend a model size class for this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := profileHost(cmd, root)
			return root.opts.Print(catalog.RecommendTier(profile))
		},
	}
}

func newModelsCheckCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "check [model...]",
		Short: "Check a model selection against this host's hardware",
		Long: `Check the given model identifiers (or the configured selection when
none are given) against the host's RAM, VRAM and free disk space.`,
		Example: `  chatstack models check llama3.2:3b codellama:13b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selection := args
			if len(selection) == 0 {
				selection = root.cfg.Models.Selection
			}

			cat, err := loadCatalog(root.cfg)
			if err != nil {
				return err
			}

			profile := profileHost(cmd, root)
			report := cat.Evaluate(profile, selection)
			return root.opts.Print(report)
		},
	}
}

func profileHost(cmd *cobra.Command, root *RootCommand) hal.Profile {
	profiler := hal.NewProfiler(root.cfg.Paths.DataDir,
		hal.WithSystemProbe(system.NewProbe()),
		hal.WithGPUProbe(nvidia.NewProbe("")),
	)
	return profiler.Profile(cmd.Context())
}
