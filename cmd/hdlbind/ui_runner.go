package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"hdlbind/internal/buildpipeline"
	"hdlbind/internal/driver"
	"hdlbind/internal/ports"
	"hdlbind/internal/ui"
)

type buildOutcome struct {
	results []buildpipeline.Result
	err     error
}

type uiProgram interface {
	Run() (tea.Model, error)
}

var newUIProgram = func(model tea.Model) uiProgram {
	return tea.NewProgram(model, tea.WithOutput(os.Stdout))
}

var buildModules = func(ctx context.Context, opts driver.Options, mods []*ports.Module) ([]buildpipeline.Result, error) {
	rt, err := driver.New(opts)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.Build(ctx, mods...)
}

func runBuildWithUI(ctx context.Context, title string, opts *driver.Options, mods []*ports.Module) ([]buildpipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan buildOutcome, 1)

	go func() {
		defer close(events)
		optsCopy := *opts
		optsCopy.Progress = buildpipeline.ChannelSink{Ch: events}
		results, err := buildModules(ctx, optsCopy, mods)
		outcomeCh <- buildOutcome{results: results, err: err}
	}()

	model := ui.NewProgressModel(title, moduleNames(mods), events)
	_, uiErr := newUIProgram(model).Run()
	// the UI ends before the build only on ctrl+c; stop the toolchain children
	cancel()
	// keep draining so the builder never blocks on a closed UI
	for range events {
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
