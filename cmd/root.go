// Package cmd wires the command line interface of pgl-mirror.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
)

// NewRootCommand returns the pgl-mirror command tree. Each call builds fresh
// flag state.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   buildinfo.BinaryName,
		Short: "One-way directory mirroring on a fixed interval",
		Long: buildinfo.Name + ` keeps replica folders identical to their source folders.

Every cycle copies new and changed files into the replica, removes what no
longer exists in the source and records each action in an audit log.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newInitCommand(), newVersionCommand())
	return root
}

func newRunCommand() *cobra.Command {
	f := &cliFlags{}
	var noColor bool
	c := &cobra.Command{
		Use:   "run",
		Short: "Mirror the configured pairs until interrupted",
		Example: "  " + buildinfo.BinaryName + " run --source ./docs --replica /mnt/backup/docs --interval 10 --log /var/log\n" +
			"  " + buildinfo.BinaryName + " run --config ./pgl-mirror.config.json --once",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := RunOptions{
				ConfigPath: stringValue(f.ConfigPath),
				Once:       boolValue(f.Once),
				NoColor:    noColor,
			}
			return RunMirror(cmd.Context(), opts, flagsToMap(cmd.Flags(), f))
		},
	}
	c.Flags().SortFlags = false
	registerPairFlags(c.Flags(), f)
	registerSyncFlags(c.Flags(), f)
	registerGlobalFlags(c.Flags(), f)
	f.Once = c.Flags().Bool("once", false, "Run exactly one cycle per pair and exit.")
	c.Flags().BoolVar(&noColor, "no-color", false, "Disable colors on the console copy of the audit log.")
	return c
}

func newInitCommand() *cobra.Command {
	f := &cliFlags{}
	c := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := InitOptions{
				ConfigPath: stringValue(f.ConfigPath),
				Force:      boolValue(f.Force),
			}
			return RunInit(cmd.Context(), opts, flagsToMap(cmd.Flags(), f))
		},
	}
	c.Flags().SortFlags = false
	registerPairFlags(c.Flags(), f)
	registerSyncFlags(c.Flags(), f)
	registerGlobalFlags(c.Flags(), f)
	f.Force = c.Flags().Bool("force", false, "Overwrite an existing configuration file without asking.")
	return c
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunVersion(cmd.OutOrStdout(), buildinfo.Name, buildinfo.Version)
		},
	}
}
