package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autotiss/internal/orchestrator"
)

func newLinkCmd(a *app) *cobra.Command {
	var perContainer bool
	linkCmd := &cobra.Command{
		Use:   "link-logins",
		Short: "Associate the listed logins with every active entity in the listing",
		Long: `Runs association cycles over the current listing. With --containers the
listing of every container named in the input list is visited in turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := orchestrator.ModeLinkLogins
			if perContainer {
				mode = orchestrator.ModeLinkPerContainer
			}
			return a.run(cmd.Context(), a, mode)
		},
	}
	linkCmd.Flags().BoolVar(&perContainer, "containers", false, "visit each container from the input list")
	return linkCmd
}

func newServicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register-services",
		Short: "Register a service for every listed provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), a, orchestrator.ModeRegisterServices)
		},
	}
}
