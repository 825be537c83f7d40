package cli

import (
	"github.com/spf13/cobra"

	"github.com/jguan/chatstack/pkg/catalog"
	"github.com/jguan/chatstack/pkg/infra/hal"
)

func NewHardwareCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "hardware",
		Short: "Show the host hardware profile and model-size recommendation",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := profileHost(cmd, root)
			tier := catalog.RecommendTier(profile)

			return root.opts.Print(struct {
				Profile hal.Profile  `json:"profile"`
				Tier    catalog.Tier `json:"recommendation"`
			}{profile, tier})
		},
	}
}
