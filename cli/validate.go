package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AndurilCode/mcp-apps-kit-sub001/config"
	"github.com/AndurilCode/mcp-apps-kit-sub001/schedule"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate an appskit.yaml configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return exitError(exitValidation, "%s", err)
	}

	// Cron expressions get the full parse, not just a non-empty check.
	for _, s := range cfg.Schedules {
		if _, err := schedule.ParseExpression(s.Cron); err != nil {
			return exitError(exitValidation, "schedule for tool %q: %s", s.Tool, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
	return nil
}
