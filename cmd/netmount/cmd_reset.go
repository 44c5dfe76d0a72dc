package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoro11031/netmount/internal/cli"
)

var (
	resetForce      bool
	resetRemembered bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget pending fstab registrations",
	Long: `Clear the list of shares whose fstab registration failed after mounting.

Mounted shares and fstab are not touched. Use --remembered to also delete
the values remembered for the prompts.`,
	Args: cobra.NoArgs,
	RunE: withApp(resetState),
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetRemembered, "remembered", false, "Also delete the remembered prompt values")
	rootCmd.AddCommand(resetCmd)
}

func resetState(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	// Confirmation prompt
	if !resetForce {
		app.UI.Header("Reset netmount state")
		app.UI.Warning("This will forget all pending fstab registrations")
		if resetRemembered {
			app.UI.Warning("Remembered prompt values will also be DELETED")
			app.UI.Warningf("  %s", app.Config.FilePath())
		}
		app.UI.Print("")

		confirm, err := app.UI.PromptYesNo("Are you sure you want to reset?", false)
		if err != nil {
			return err
		}
		if !confirm {
			app.UI.Info("Reset cancelled")
			return nil
		}
	}

	if err := app.Markers.RemoveAll(); err != nil {
		return fmt.Errorf("failed to remove pending registrations: %w", err)
	}
	app.UI.Success("Pending registrations cleared")

	if resetRemembered {
		w := cli.NewShareWizard(app.UI, app.Config, app.Service)
		forgotten, err := w.Forget()
		if err != nil {
			return fmt.Errorf("failed to delete remembered values: %w", err)
		}
		if forgotten == 0 {
			app.UI.Info("  (No remembered values)")
		} else {
			app.UI.Successf("Deleted %d remembered values from %s", forgotten, app.Config.FilePath())
		}
	}
	return nil
}
