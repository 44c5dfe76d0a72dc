package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoro11031/netmount/internal/cli"
)

var checkShare shareFlags

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered and mounted shares",
	Long: `Display the network shares in fstab and whether they are mounted,
registrations still pending after a failed fstab update, and network
filesystems mounted outside fstab.`,
	Args: cobra.NoArgs,
	RunE: withApp(showStatus),
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that a share server is reachable",
	Args:  cobra.NoArgs,
	RunE:  withApp(runCheck),
}

func init() {
	checkShare.register(checkCmd.Flags())
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
}

func showStatus(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	app.UI.Header("netmount status")

	if err := cli.ShowStatus(app); err != nil {
		return err
	}
	app.UI.Print("")

	// Show settings file location
	if _, err := os.Stat(app.Config.FilePath()); err == nil {
		app.UI.Infof("Remembered values: %s", app.Config.FilePath())
	}
	app.UI.Infof("Credentials directory: %s", app.Settings.CredentialsDir)
	app.UI.Infof("Pending registrations: %s", app.Markers.Dir())
	return nil
}

func runCheck(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	if !checkShare.given() {
		return cli.CheckInteractive(ctx, app)
	}
	// Only the server and type matter for the probe
	f := checkShare.forStore()
	f.username, f.domain, f.options = "", "", nil
	if f.fsType != "nfs" {
		f.options = []string{"guest"}
	}
	p, err := app.Service.Validate(f.raw())
	if err != nil {
		return err
	}
	return cli.CheckShare(ctx, app, p)
}
