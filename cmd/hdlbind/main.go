package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"hdlbind/internal/driver"
	"hdlbind/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "hdlbind",
	Short: "Build and inspect Verilator models of HDL modules",
	Long: `hdlbind verilates HDL modules into shared libraries, caches them by content
fingerprint and reports how their ports map onto host types.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupGlobals,
}

// main registers subcommands and persistent flags, then executes the root
// command. Any error exits with status 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(shimCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("verbose", false, "log build and load activity")
	rootCmd.PersistentFlags().String("manifest", "", "path to hdlbind.toml (default: search upwards)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupGlobals(cmd *cobra.Command, _ []string) error {
	colorValue, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	colorMode, err := readSwitchMode("color", colorValue)
	if err != nil {
		return err
	}
	color.NoColor = !colorMode.enabledFor(os.Stdout)

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	driver.SetLogger(logger)
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
