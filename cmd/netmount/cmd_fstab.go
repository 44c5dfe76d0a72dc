package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zoro11031/netmount/internal/cli"
	"github.com/zoro11031/netmount/internal/fstab"
)

var (
	fstabShare    shareFlags
	fstabOutput   string
	fstabListAll  bool
	fstabRmDevice string
)

var fstabCmd = &cobra.Command{
	Use:   "fstab",
	Short: "Inspect and edit fstab entries for network shares",
}

var fstabListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fstab entries",
	Long: `List the network share entries of the static mount table.

Inline passwords are masked. Use --all to include local filesystems.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
		return cli.ListFstab(app, cmd.OutOrStdout(), fstabOutput, !fstabListAll)
	}),
}

var fstabAddCmd = &cobra.Command{
	Use:   "add [mount-point]",
	Short: "Add or update the fstab entry of a share without mounting it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withApp(runFstabAdd),
}

var fstabRemoveCmd = &cobra.Command{
	Use:   "remove <mount-point>",
	Short: "Remove the fstab entry of a share without unmounting it",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runFstabRemove),
}

var fstabRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Register shares whose fstab update failed after mounting",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
		return cli.RetryPending(ctx, app)
	}),
}

func init() {
	fstabListCmd.Flags().StringVarP(&fstabOutput, "output", "o", "table", "Output format: table or yaml")
	fstabListCmd.Flags().BoolVarP(&fstabListAll, "all", "a", false, "Include entries that are not network shares")

	fstabShare.register(fstabAddCmd.Flags())
	_ = fstabAddCmd.MarkFlagRequired("server")
	_ = fstabAddCmd.MarkFlagRequired("share")

	fstabRemoveCmd.Flags().StringVar(&fstabRmDevice, "device", "", "Only remove the entry for this device")

	fstabCmd.AddCommand(fstabListCmd, fstabAddCmd, fstabRemoveCmd, fstabRetryCmd)
	rootCmd.AddCommand(fstabCmd)
}

func runFstabAdd(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	p, err := fstabShare.params(app, args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	entry, result, err := app.Service.AddFstabEntry(p)
	if err != nil {
		return err
	}
	cli.ReportFstabChange(app.UI, entry, result, app.Service.FstabPath())
	return nil
}

func runFstabRemove(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	mountPoint := filepath.Clean(args[0])

	entries, err := app.Service.EntriesAt(mountPoint)
	if err != nil {
		return err
	}
	var matches []fstab.Entry
	for _, e := range entries {
		if fstabRmDevice != "" && e.Device != fstabRmDevice {
			continue
		}
		matches = append(matches, e)
	}

	switch len(matches) {
	case 0:
		app.UI.Infof("%s has no entry for %s", app.Service.FstabPath(), mountPoint)
		return nil
	case 1:
	default:
		return fmt.Errorf("%d entries use %s; pick one with --device", len(matches), mountPoint)
	}

	e := matches[0]
	if _, err := app.Service.RemoveFstabEntry(e.Device, e.MountPoint); err != nil {
		return err
	}
	app.UI.Successf("Removed %s from %s", mountPoint, app.Service.FstabPath())
	if e.CredentialsFile() != "" {
		app.UI.Info("Run 'netmount credentials purge' to delete credentials files no entry uses")
	}
	return nil
}
