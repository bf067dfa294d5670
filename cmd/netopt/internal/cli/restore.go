package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"netopt/internal/checkpoint"
	"netopt/internal/events"
	"netopt/internal/safety"
)

type restoreCmd struct{ flags *rootFlags }

func newRestoreCmd(flags *rootFlags) *restoreCmd { return &restoreCmd{flags: flags} }

func (c *restoreCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Re-apply net.* sysctls and reset qdiscs to defaults from a checkpoint (firewall rules are not restored)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.flags)
			if err != nil {
				return err
			}
			sink := newLogger(c.flags)
			log := sink.Logger()

			lock := safety.NewLock(filepath.Join(c.flags.stateRoot, "netopt.lock"))
			if err := lock.Acquire(); err != nil {
				return err
			}
			defer lock.Release()

			store := checkpoint.New(cmd.Context(), log, c.flags.stateRoot, cfg.CheckpointRetention)
			if err := store.Restore(args[0]); err != nil {
				return err
			}
			sink.Info(events.KindCheckpoint, "restored checkpoint", "id", args[0])
			fmt.Println("restored", args[0])
			return nil
		},
	}
	return cmd
}
