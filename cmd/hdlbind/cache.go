package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"hdlbind/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clean the workspace build cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached artifacts",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean [module...]",
	Short: "Remove cached artifacts (all of them by default)",
	RunE:  runCacheClean,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}

func openWorkspaceCache(cmd *cobra.Command) (*cache.Cache, string, error) {
	cfg, err := loadWorkspace(cmd)
	if err != nil {
		return nil, "", err
	}
	c, err := cache.Open(cfg.CacheDir())
	if err != nil {
		return nil, "", err
	}
	return c, cfg.Root, nil
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	c, root, err := openWorkspaceCache(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	entries := c.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(out, "cache is empty")
		return nil
	}
	for _, e := range entries {
		size := "-"
		if info, statErr := os.Stat(e.Artifact); statErr == nil {
			size = formatSize(info.Size())
		}
		fmt.Fprintf(out, "%s  %-20s %8s  %s  %s\n",
			e.Fingerprint.Short(), e.Module, size,
			e.BuiltAt.Local().Format(time.DateTime),
			formatPathForOutput(root, e.Artifact))
	}
	return nil
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	c, root, err := openWorkspaceCache(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(out, "cleared %s\n", formatPathForOutput(root, c.Dir()))
		return nil
	}
	wanted := make(map[string]bool, len(args))
	for _, name := range args {
		wanted[name] = true
	}
	removed := 0
	for _, e := range c.Entries() {
		if !wanted[e.Module] {
			continue
		}
		if err := c.Remove(e.Fingerprint); err != nil {
			return err
		}
		removed++
	}
	fmt.Fprintf(out, "removed %d artifact(s)\n", removed)
	return nil
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
