// Package cli wires the netopt verbs onto cobra commands, translating
// each component's sentinel errors into the exit codes spec §6 assigns.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"netopt/internal/config"
	"netopt/internal/events"
)

type ExitCode = int

const (
	ExitSuccess          ExitCode = 0
	ExitGeneric          ExitCode = 1
	ExitPermissionDenied ExitCode = 2
	ExitMissingTool      ExitCode = 3
	ExitConfigError      ExitCode = 4
	ExitCheckpointFailed ExitCode = 5
	ExitPreflightFailed  ExitCode = 6
	ExitPostValidateFail ExitCode = 7
	ExitWatchdogRollback ExitCode = 8
)

// rootFlags holds the persistent flags every subcommand reads.
type rootFlags struct {
	verbose    bool
	jsonLogs   bool
	stateRoot  string
	sysConfig  string
	userConfig string
	noWatchdog bool
}

// Run builds and executes the cobra command tree, returning the process
// exit code.
func Run() ExitCode {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "netopt",
		Short: "Linux multipath routing optimizer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonLogs, "json", false, "emit JSON-formatted logs instead of human-readable ones")
	rootCmd.PersistentFlags().StringVar(&flags.stateRoot, "state-root", "/var/lib/netopt", "state directory root (checkpoints, lock, route backup)")
	rootCmd.PersistentFlags().StringVar(&flags.sysConfig, "system-config", "/etc/netopt/netopt.conf", "system configuration file path")
	rootCmd.PersistentFlags().StringVar(&flags.userConfig, "user-config", defaultUserConfigPath(), "user configuration file path")
	rootCmd.PersistentFlags().BoolVar(&flags.noWatchdog, "no-watchdog", false, "disable the remote-lockout watchdog even on a detected remote session")

	rootCmd.AddCommand(
		newApplyCmd(flags).Command(),
		newRestoreCmd(flags).Command(),
		newStatusCmd(flags).Command(),
		newCheckpointCmd(flags).Command(),
		newWatchdogCmd(flags).Command(),
	)

	exitCode := ExitSuccess
	if err := rootCmd.Execute(); err != nil {
		exitCode = exitCodeFor(err)
		fmt.Fprintln(os.Stderr, "netopt:", err)
	}
	return exitCode
}

func defaultUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.config/netopt/netopt.conf"
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	return config.Load(flags.sysConfig, flags.userConfig, os.Environ())
}

func newLogger(flags *rootFlags) *events.Sink {
	log := events.NewLogger(flags.verbose, flags.jsonLogs)
	return events.NewSink(log, realClock(), nil)
}
