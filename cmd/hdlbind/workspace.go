package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hdlbind/internal/config"
	"hdlbind/internal/ports"
)

const noManifestMessage = "no hdlbind.toml found in this directory or any parent; pass --manifest"

func loadWorkspace(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("manifest")
	if err != nil {
		return nil, err
	}
	if path != "" {
		return config.Load(path)
	}
	cfg, ok, err := config.Find(".")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(noManifestMessage)
	}
	return cfg, nil
}

// selectModules converts the named modules, or every module when names is empty.
func selectModules(cfg *config.Config, names []string) ([]*ports.Module, error) {
	if len(names) == 0 {
		mods, err := cfg.AllModules()
		if err != nil {
			return nil, err
		}
		if len(mods) == 0 {
			return nil, fmt.Errorf("%s declares no [[module]] entries", cfg.Path)
		}
		return mods, nil
	}
	mods := make([]*ports.Module, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		mod, err := cfg.Module(name)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

func moduleNames(mods []*ports.Module) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.Name
	}
	return out
}
