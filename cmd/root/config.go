package root

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/parley-im/parley-core/pkg/userconfig"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the user configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShowCommand,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "opt-out <true|false>",
		Short: "Enable or disable the telemetry privacy opt-out",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigOptOutCommand,
	})

	return cmd
}

func runConfigShowCommand(cmd *cobra.Command, _ []string) error {
	config, err := userconfig.Load()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", userconfig.Path(), data)
	return nil
}

func runConfigOptOutCommand(cmd *cobra.Command, args []string) error {
	optOut, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("invalid opt-out value %q: %w", args[0], err)
	}

	config, err := userconfig.Load()
	if err != nil {
		return err
	}

	config.SetTelemetryOptOut(optOut)
	if err := config.Save(); err != nil {
		return err
	}

	if optOut {
		fmt.Fprintln(cmd.OutOrStdout(), "Telemetry reporting is now disabled")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Telemetry reporting is now enabled")
	}
	return nil
}
