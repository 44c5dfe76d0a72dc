package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zoro11031/netmount/internal/cli"
)

var (
	credShare   shareFlags
	purgeDryRun bool
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage saved passwords and credentials files",
}

var credentialsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the password of a CIFS share in the secret store",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
		p, err := credShare.forStore().params(app, args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := app.Service.SaveCredential(p); err != nil {
			cli.ReportCredentialError(app.UI, err)
			return cli.ErrFailed
		}
		app.UI.Successf("Saved the password of %s for %s", p.Username(), p.Device())
		return nil
	}),
}

var credentialsForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the saved password of a CIFS share",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
		p, err := app.Service.Validate(credShare.forStore().raw())
		if err != nil {
			return err
		}
		if err := app.Service.ForgetCredential(p); err != nil {
			cli.ReportCredentialError(app.UI, err)
			return cli.ErrFailed
		}
		app.UI.Successf("Forgot the password of %s for %s", p.Username(), p.Device())
		return nil
	}),
}

var credentialsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete credentials files no fstab entry references",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
		return cli.PurgeCredentials(app, purgeDryRun)
	}),
}

func init() {
	for _, c := range []*cobra.Command{credentialsSaveCmd, credentialsForgetCmd} {
		credShare.register(c.Flags())
		_ = c.MarkFlagRequired("server")
		_ = c.MarkFlagRequired("share")
		_ = c.MarkFlagRequired("username")
	}
	credentialsPurgeCmd.Flags().BoolVarP(&purgeDryRun, "dry-run", "n", false, "Only list the files that would be deleted")

	credentialsCmd.AddCommand(credentialsSaveCmd, credentialsForgetCmd, credentialsPurgeCmd)
	rootCmd.AddCommand(credentialsCmd)
}
