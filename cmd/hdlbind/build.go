package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hdlbind/internal/buildpipeline"
	"hdlbind/internal/driver"
	"hdlbind/internal/observ"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [module...]",
	Short: "Build the shared libraries of workspace modules",
	Long: `Build verilates and compiles the named modules (all modules by default) and
stores the artifacts in the workspace cache. Unchanged modules are reused.`,
	RunE: buildExecution,
}

func init() {
	buildCmd.Flags().String("ui", "auto", "user interface (auto|on|off)")
	buildCmd.Flags().Bool("force", false, "rebuild even when a cached artifact matches")
	buildCmd.Flags().Int("jobs", 0, "concurrent module builds (0: from manifest or GOMAXPROCS)")
	buildCmd.Flags().Bool("keep-work", false, "preserve the verilator work directories")
	buildCmd.Flags().Bool("print-commands", false, "print toolchain command lines")
	buildCmd.Flags().Bool("timings", false, "show per-module timing information")
	buildCmd.Flags().Bool("timings-json", false, "print timing information as JSON")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	keepWork, err := cmd.Flags().GetBool("keep-work")
	if err != nil {
		return err
	}
	printCommands, err := cmd.Flags().GetBool("print-commands")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return err
	}
	timingsJSON, err := cmd.Flags().GetBool("timings-json")
	if err != nil {
		return err
	}
	uiMode, err := readSwitchMode("ui", uiValue)
	if err != nil {
		return err
	}
	if jobs < 0 {
		return fmt.Errorf("--jobs must not be negative")
	}

	timer := observ.NewTimer()
	stopLoad := timer.Start("load manifest")
	cfg, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	mods, err := selectModules(cfg, args)
	if err != nil {
		return err
	}
	stopLoad(filepath.Base(cfg.Path))

	opts := driver.OptionsFromConfig(cfg)
	opts.ForceRebuild = opts.ForceRebuild || force
	opts.KeepWork = keepWork
	if jobs > 0 {
		opts.Jobs = jobs
	}
	if printCommands {
		opts.Echo = cmd.ErrOrStderr()
	}

	out := cmd.OutOrStdout()
	var results []buildpipeline.Result
	// the TUI owns the terminal, so command echo stays on the plain path
	if uiMode.enabledFor(os.Stdout) && !printCommands {
		results, err = runBuildWithUI(cmd.Context(), "hdlbind build", &opts, mods)
	} else {
		opts.Progress = buildpipeline.FuncSink(func(ev buildpipeline.Event) {
			printEvent(out, ev)
		})
		var rt *driver.Runtime
		rt, err = driver.New(opts)
		if err == nil {
			results, err = rt.Build(cmd.Context(), mods...)
		}
	}
	for _, res := range results {
		if res.Module == "" {
			continue
		}
		note := "built"
		if res.Cached {
			note = "cached"
		}
		timer.Record(res.Module, res.Timings.Total(), note, stageParts(res.Timings)...)
	}
	switch {
	case timingsJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(timer.Report()); encErr != nil && err == nil {
			err = encErr
		}
	case showTimings:
		fmt.Fprint(out, timer.Summary())
	}
	if err != nil {
		return err
	}
	printSummary(out, cfg.Root, results)
	return nil
}

func stageParts(t buildpipeline.Timings) []observ.Part {
	stages := t.Stages()
	parts := make([]observ.Part, len(stages))
	for i, st := range stages {
		parts[i] = observ.Part{Name: string(st.Stage), Dur: st.Duration}
	}
	return parts
}

var (
	okColor     = color.New(color.FgGreen, color.Bold)
	cachedColor = color.New(color.FgBlue)
	errColor    = color.New(color.FgRed, color.Bold)
)

// printEvent writes the final state of each module as a single line.
func printEvent(out io.Writer, ev buildpipeline.Event) {
	switch {
	case ev.Status == buildpipeline.StatusCached:
		fmt.Fprintf(out, "%s %s\n", cachedColor.Sprintf("%10s", "cached"), ev.Module)
	case ev.Status == buildpipeline.StatusDone && ev.Stage == buildpipeline.StageInstall:
		fmt.Fprintf(out, "%s %s (%.1f s)\n", okColor.Sprintf("%10s", "built"), ev.Module, ev.Elapsed.Seconds())
	case ev.Status == buildpipeline.StatusError:
		fmt.Fprintf(out, "%s %s: %s failed\n", errColor.Sprintf("%10s", "error"), ev.Module, ev.Stage)
	}
}

func printSummary(out io.Writer, root string, results []buildpipeline.Result) {
	built, cached := 0, 0
	for _, res := range results {
		if res.Cached {
			cached++
		} else {
			built++
		}
	}
	fmt.Fprintf(out, "%d built, %d cached\n", built, cached)
	for _, res := range results {
		fmt.Fprintf(out, "  %-20s %s\n", res.Module, formatPathForOutput(root, res.Artifact))
	}
}

func formatPathForOutput(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	if strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
