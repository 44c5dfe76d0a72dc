package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zoro11031/netmount/internal/cli"
)

var troubleshootNoProbe bool

var troubleshootCmd = &cobra.Command{
	Use:     "troubleshoot",
	Aliases: []string{"doctor"},
	Short:   "Run troubleshooting diagnostics",
	Long: `Check the mount helpers, the static mount table, every registered share
and the credentials directory. Servers of shares that are not mounted are
probed unless --no-probe is given.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
		app.UI.Header("netmount troubleshooting")
		return cli.Troubleshoot(ctx, app, !troubleshootNoProbe)
	}),
}

func init() {
	troubleshootCmd.Flags().BoolVar(&troubleshootNoProbe, "no-probe", false, "Do not contact share servers")
	rootCmd.AddCommand(troubleshootCmd)
}
