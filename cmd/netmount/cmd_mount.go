package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoro11031/netmount/internal/cli"
	"github.com/zoro11031/netmount/internal/mount"
)

var (
	mountShare     shareFlags
	mountFile      string
	mountRegister  bool
	mountSaveCreds bool
	mountCheck     bool

	unmountLazy       bool
	unmountForce      bool
	unmountUnregister bool
)

var mountCmd = &cobra.Command{
	Use:   "mount [mount-point]",
	Short: "Mount a network share",
	Long: `Mount a CIFS or NFS share.

Without --server the share is asked for interactively, pre-filled with the
values used last time. With --file every share listed in a YAML file is
mounted, a few at a time:

  shares:
    - server: nas.local
      share: /srv/media
      type: nfs
      mount_point: /mnt/media
      register: true

Passwords can't be given in the file; they are taken from the secret store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runMount),
}

var unmountCmd = &cobra.Command{
	Use:     "unmount [mount-point]",
	Aliases: []string{"umount"},
	Short:   "Unmount a network share",
	Args:    cobra.MaximumNArgs(1),
	RunE:    withApp(runUnmount),
}

func init() {
	mountShare.register(mountCmd.Flags())
	mountCmd.Flags().StringVarP(&mountFile, "file", "f", "", "Mount every share listed in this YAML file")
	mountCmd.Flags().BoolVar(&mountRegister, "register", false, "Also add the share to fstab")
	mountCmd.Flags().BoolVar(&mountSaveCreds, "save-credentials", false, "Save the password in the secret store")
	mountCmd.Flags().BoolVar(&mountCheck, "check", false, "Probe the server before mounting")
	mountCmd.MarkFlagsMutuallyExclusive("file", "server")

	unmountCmd.Flags().BoolVarP(&unmountLazy, "lazy", "l", false, "Detach now, clean up once no longer busy")
	unmountCmd.Flags().BoolVar(&unmountForce, "force", false, "Force unmount of an unreachable server")
	unmountCmd.Flags().BoolVar(&unmountUnregister, "unregister", false, "Also remove the share from fstab")

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(unmountCmd)
}

func runMount(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	if mountFile != "" {
		return cli.MountBatchFile(ctx, app, mountFile)
	}
	if !mountShare.given() {
		return cli.MountInteractive(ctx, app)
	}

	p, err := mountShare.params(app, args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if mountCheck {
		if err := cli.CheckShare(ctx, app, p); err != nil {
			return err
		}
	}
	return cli.MountShare(ctx, app, cli.MountRequest{
		Params:          p,
		Register:        mountRegister,
		SaveCredentials: mountSaveCreds,
	})
}

func runUnmount(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		if app.UI.IsNonInteractive() {
			return fmt.Errorf("mount point is required")
		}
		return cli.UnmountInteractive(ctx, app)
	}
	opts := mount.UnmountOptions{Lazy: unmountLazy, Force: unmountForce}
	return cli.UnmountShare(ctx, app, args[0], opts, unmountUnregister)
}
