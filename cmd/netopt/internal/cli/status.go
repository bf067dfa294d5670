package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"netopt/internal/checkpoint"
	"netopt/internal/inventory"
)

type statusCmd struct{ flags *rootFlags }

func newStatusCmd(flags *rootFlags) *statusCmd { return &statusCmd{flags: flags} }

func (c *statusCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report link inventory, last transaction outcome, watchdog arm state, and checkpoint count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.flags)
			if err != nil {
				return err
			}
			sink := newLogger(c.flags)
			log := sink.Logger()

			exclude, err := cfg.ExcludeInterfacesPattern()
			if err != nil {
				return err
			}
			inv := inventory.New(log, exclude)
			links, err := inv.List()
			if err != nil {
				return err
			}

			lockPath := filepath.Join(c.flags.stateRoot, "netopt.lock")
			locked := "unlocked"
			if data, err := os.ReadFile(lockPath); err == nil {
				locked = fmt.Sprintf("locked (pid %s)", string(data))
			}
			fmt.Println("transaction lock:", locked)

			if _, armed := readPendingRollback(c.flags.stateRoot); armed {
				fmt.Println("watchdog: armed, awaiting confirmation or rollback")
			} else {
				fmt.Println("watchdog: disarmed")
			}

			if rec, ok := readTransactionRecord(c.flags.stateRoot); ok {
				fmt.Printf("last transaction: %s at %s", rec.Outcome, rec.At.Format("2006-01-02T15:04:05Z"))
				if rec.CheckpointID != "" {
					fmt.Printf(" (checkpoint %s)", rec.CheckpointID)
				}
				fmt.Println()
				if len(rec.Plan) > 0 {
					fmt.Println()
					fmt.Println("current plan:")
					for _, e := range rec.Plan {
						fmt.Printf("  %-12s weight=%-3d gateway=%s\n", e.Link.Name, e.Weight, e.Gateway)
					}
				}
			} else {
				fmt.Println("last transaction: none recorded")
			}

			store := checkpoint.New(cmd.Context(), log, c.flags.stateRoot, cfg.CheckpointRetention)
			if checkpoints, cerr := store.List(); cerr == nil {
				fmt.Printf("checkpoints: %d\n", len(checkpoints))
			} else {
				sink.Warn("status", "listing checkpoints failed", "error", cerr)
			}

			fmt.Println()
			fmt.Printf("%-12s %-10s %-8s %-8s %s\n", "LINK", "CLASS", "ADMIN", "CARRIER", "GATEWAY")
			for _, l := range links {
				gw, gerr := inv.Gateway(l)
				gwStr := "-"
				if gerr == nil && gw != nil {
					gwStr = gw.String()
				}
				fmt.Printf("%-12s %-10s %-8v %-8v %s\n", l.Name, l.Class, l.AdminUp, l.Carrier, gwStr)
			}
			return nil
		},
	}
	return cmd
}
