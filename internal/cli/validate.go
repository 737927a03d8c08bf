package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/squall/internal/bench/config"
	"github.com/wesleyorama2/squall/internal/bench/engine"
	"github.com/wesleyorama2/squall/internal/workload"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a benchmark configuration without running it",
		RunE:  validateConfig,
	}
	cmd.Flags().StringP("config", "c", "", "Configuration file (required)")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func validateConfig(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	noColor, _ := cmd.Flags().GetBool("no-color")

	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	if noColor {
		ok.DisableColor()
		warn.DisableColor()
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// engine.New applies defaults, validates and resolves generators
	eng, err := engine.New(cfg, workload.DefaultRegistry())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(out, "%s %s\n", warn.Sprint("!"), w)
	}
	fmt.Fprintf(out, "%s %s is valid: %d target(s) %v, run length %s\n",
		ok.Sprint("✓"), configFile, len(cfg.Targets), eng.TrackNames(),
		eng.RampUp()+eng.Duration()+eng.RampDown())
	return nil
}
