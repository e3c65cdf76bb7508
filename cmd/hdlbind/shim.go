package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hdlbind/internal/shim"
)

var shimCmd = &cobra.Command{
	Use:   "shim <module>",
	Short: "Print the generated C++ shim of a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runShim,
}

func init() {
	shimCmd.Flags().Bool("trace", false, "include VCD trace entry points (default: from manifest)")
	shimCmd.Flags().StringP("output", "o", "", "write the shim to a file instead of stdout")
}

func runShim(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	mod, err := cfg.Module(args[0])
	if err != nil {
		return err
	}
	trace := cfg.Verilator.Trace
	if cmd.Flags().Changed("trace") {
		if trace, err = cmd.Flags().GetBool("trace"); err != nil {
			return err
		}
	}
	src, err := shim.Generate(mod, shim.Options{Trace: trace})
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output != "" {
		if err := os.WriteFile(output, src, 0o600); err != nil {
			return fmt.Errorf("failed to write %q: %w", output, err)
		}
		return nil
	}
	_, err = cmd.OutOrStdout().Write(src)
	return err
}
