package cmd

import (
	"github.com/spf13/pflag"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	ConfigPath *string
	LogLevel   *string

	// Shared: Run / Init
	Name     *string
	Source   *string
	Replica  *string
	Interval *int
	LogPath  *string

	Metrics        *bool
	ModTimeWindow  *int
	ExcludeFiles   *flagparse.ListValue
	ExcludeDirs    *flagparse.ListValue
	PreCycleHooks  *flagparse.ListValue
	PostCycleHooks *flagparse.ListValue
	FailFast       *bool

	// Run specific
	Once *bool

	// Init specific
	Force *bool
}

func registerGlobalFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.ConfigPath = fs.String("config", "", "Path of the JSON configuration file.")
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
}

func registerPairFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.Name = fs.String("name", "", "Name of the pair in diagnostic logs.")
	f.Source = fs.String("source", "", "Source directory to mirror from.")
	f.Replica = fs.String("replica", "", "Replica directory to mirror into.")
	f.Interval = fs.Int("interval", config.DefaultIntervalMinutes, "Minutes between the end of a cycle and the start of the next.")
	f.LogPath = fs.String("log", "", "Audit log destination: an existing folder or a file path whose folder exists.")
}

func registerSyncFlags(fs *pflag.FlagSet, f *cliFlags) {
	f.Metrics = fs.Bool("metrics", true, "Log per-pass counters after every cycle.")
	f.ModTimeWindow = fs.Int("mod-time-window", 0, "Time window in seconds to consider file modification times equal (0=exact).")

	f.ExcludeFiles = flagparse.NewExcludeListValue()
	fs.Var(f.ExcludeFiles, "exclude-files", "Comma-separated list of case-insensitive file names to exclude (supports glob patterns).")
	f.ExcludeDirs = flagparse.NewExcludeListValue()
	fs.Var(f.ExcludeDirs, "exclude-dirs", "Comma-separated list of case-insensitive directory names to exclude (supports glob patterns).")
	f.PreCycleHooks = flagparse.NewCmdListValue()
	fs.Var(f.PreCycleHooks, "pre-cycle-hooks", "Comma-separated list of commands to run before every cycle.")
	f.PostCycleHooks = flagparse.NewCmdListValue()
	fs.Var(f.PostCycleHooks, "post-cycle-hooks", "Comma-separated list of commands to run after every cycle.")
	f.FailFast = fs.Bool("fail-fast", false, "Fail the cycle when a pre-cycle hook fails.")
}

// flagsToMap returns the config-related flags that were explicitly set by the
// user, along with their values. The map is used to selectively override the
// loaded configuration.
func flagsToMap(fs *pflag.FlagSet, f *cliFlags) map[string]any {
	flagMap := make(map[string]any)

	addIfUsed(flagMap, fs, "log-level", f.LogLevel)
	addIfUsed(flagMap, fs, "name", f.Name)
	addIfUsed(flagMap, fs, "source", f.Source)
	addIfUsed(flagMap, fs, "replica", f.Replica)
	addIfUsed(flagMap, fs, "interval", f.Interval)
	addIfUsed(flagMap, fs, "log", f.LogPath)
	addIfUsed(flagMap, fs, "metrics", f.Metrics)
	addIfUsed(flagMap, fs, "mod-time-window", f.ModTimeWindow)
	addIfUsed(flagMap, fs, "fail-fast", f.FailFast)

	addListIfUsed(flagMap, fs, "exclude-files", f.ExcludeFiles)
	addListIfUsed(flagMap, fs, "exclude-dirs", f.ExcludeDirs)
	addListIfUsed(flagMap, fs, "pre-cycle-hooks", f.PreCycleHooks)
	addListIfUsed(flagMap, fs, "post-cycle-hooks", f.PostCycleHooks)

	return flagMap
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, fs *pflag.FlagSet, name string, ptr *T) {
	if ptr != nil && fs.Changed(name) {
		flagMap[name] = *ptr
	}
}

// addListIfUsed adds the items of v to flagMap if v is not nil and the flag was set.
func addListIfUsed(flagMap map[string]any, fs *pflag.FlagSet, name string, v *flagparse.ListValue) {
	if v != nil && fs.Changed(name) {
		flagMap[name] = v.Items()
	}
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func boolValue(p *bool) bool {
	return p != nil && *p
}
