package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"netopt/internal/checkpoint"
	"netopt/internal/events"
)

type checkpointCmd struct{ flags *rootFlags }

func newCheckpointCmd(flags *rootFlags) *checkpointCmd { return &checkpointCmd{flags: flags} }

func (c *checkpointCmd) store(cmd *cobra.Command) (checkpoint.Store, *events.Sink, error) {
	cfg, err := loadConfig(c.flags)
	if err != nil {
		return nil, nil, err
	}
	sink := newLogger(c.flags)
	store := checkpoint.New(cmd.Context(), sink.Logger(), c.flags.stateRoot, cfg.CheckpointRetention)
	return store, sink, nil
}

func (c *checkpointCmd) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "checkpoint",
		Short: "Create, list, restore, delete, or prune system-state checkpoints",
	}

	var description string
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Capture the current system state as a new checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, sink, err := c.store(cmd)
			if err != nil {
				return err
			}
			id, err := store.Create(args[0], description)
			if err != nil {
				return err
			}
			sink.Info(events.KindCheckpoint, "checkpoint created", "id", id)
			fmt.Println(id)
			return nil
		},
	}
	createCmd.Flags().StringVar(&description, "description", "", "human-readable note stored in checkpoint metadata")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints newest-first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.store(cmd)
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			// Store.List returns oldest-first (the order Prune's retention
			// slicing depends on); reverse for display only.
			for i := len(entries) - 1; i >= 0; i-- {
				e := entries[i]
				fmt.Printf("%s\t%s\t%s\n", e.ID, e.CreatedAtUTC.Format("2006-01-02T15:04:05Z"), e.Description)
			}
			return nil
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a checkpoint (alias of the top-level `restore` verb)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, sink, err := c.store(cmd)
			if err != nil {
				return err
			}
			if err := store.Restore(args[0]); err != nil {
				return err
			}
			sink.Info(events.KindCheckpoint, "checkpoint restored", "id", args[0])
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a checkpoint archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.store(cmd)
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete checkpoints beyond the retention limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.store(cmd)
			if err != nil {
				return err
			}
			return store.Prune()
		},
	}

	root.AddCommand(createCmd, listCmd, restoreCmd, deleteCmd, pruneCmd)
	return root
}
