package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/planner"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// InitOptions are the init settings that are not part of the configuration.
type InitOptions struct {
	// ConfigPath is the file to write. Defaults to ConfigFileName in the
	// working directory.
	ConfigPath string
	// Force overwrites an existing file without asking.
	Force bool
}

// RunInit writes a configuration file built from an existing file at the same
// path (if any), the defaults and flagMap. The result is validated and every
// pair is preflight-checked before anything is written.
func RunInit(ctx context.Context, opts InitOptions, flagMap map[string]any) error {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.ConfigFileName
	}
	absConfigPath, err := util.AbsPath(configPath)
	if err != nil {
		return fmt.Errorf("could not determine absolute config path for %s: %w", configPath, err)
	}

	// Try to load an existing config to preserve its settings.
	baseConfig := config.NewDefault()
	_, statErr := os.Stat(absConfigPath)
	exists := statErr == nil
	if exists {
		loaded, err := config.Load(absConfigPath)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
		} else {
			baseConfig = loaded
		}
	}

	runConfig := config.MergeFlags(baseConfig, flagMap)
	if err := runConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	startTime := time.Now()
	plans, err := planner.GeneratePairPlans(runConfig)
	if err != nil {
		return err
	}
	for _, plan := range plans {
		if err := preflight.CheckPair(plan.Pair.Source, plan.Pair.Replica); err != nil {
			return fmt.Errorf("initialization preflight failed for pair %s: %w", plan.Name, err)
		}
	}

	if exists && !opts.Force {
		fmt.Printf("WARNING: Configuration file already exists at %s.\n", absConfigPath)
		if !PromptForConfirmation("Do you want to overwrite it?", false) {
			plog.Info(buildinfo.Name + " init operation canceled.")
			return nil
		}
	}

	if err := config.Generate(absConfigPath, runConfig, true); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" configuration successfully initialized.", "pairs", len(plans), "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
