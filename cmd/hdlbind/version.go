package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"hdlbind/internal/shim"
	"hdlbind/internal/version"
)

// buildInfo is what `hdlbind version` reports. Optional fields stay empty
// unless requested.
type buildInfo struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	ShimABI   uint32 `json:"shim_abi"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show hdlbind build metadata",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "include every recorded piece of build metadata")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}
	full, err := flags.GetBool("full")
	if err != nil {
		return err
	}
	withHash, err := flags.GetBool("hash")
	if err != nil {
		return err
	}
	withDate, err := flags.GetBool("date")
	if err != nil {
		return err
	}
	info := collectBuildInfo(withHash || full, withDate || full)

	switch strings.ToLower(format) {
	case "json":
		return writeVersionJSON(cmd.OutOrStdout(), info)
	case "pretty":
		writeVersionPretty(cmd.OutOrStdout(), info)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
}

func collectBuildInfo(withHash, withDate bool) buildInfo {
	info := buildInfo{
		Tool:    "hdlbind",
		Version: strings.TrimSpace(version.Version),
		ShimABI: shim.Version,
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if withHash {
		info.GitCommit = orUnknown(version.GitCommit)
	}
	if withDate {
		info.BuildDate = orUnknown(version.BuildDate)
	}
	return info
}

func writeVersionPretty(out io.Writer, info buildInfo) {
	fmt.Fprintf(out, "hdlbind %s (shim abi %d)\n", version.Colored(), info.ShimABI)
	if info.GitCommit != "" {
		fmt.Fprintf(out, "commit: %s\n", info.GitCommit)
	}
	if info.BuildDate != "" {
		fmt.Fprintf(out, "built:  %s\n", info.BuildDate)
	}
}

func writeVersionJSON(out io.Writer, info buildInfo) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
