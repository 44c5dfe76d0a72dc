package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zoro11031/netmount/internal/cli"
	"github.com/zoro11031/netmount/internal/config"
	"github.com/zoro11031/netmount/pkg/version"
)

var (
	configPath     string
	nonInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "netmount",
	Short: "Mount CIFS and NFS network shares",
	Long: `netmount mounts Samba/Windows (CIFS) and NFS shares and can register them
in /etc/fstab so they are mounted again at boot.

Passwords never appear on a command line: they are handed to the mount
helper in a private credentials file that is removed right after the mount,
and can be kept in the system keyring for later mounts.

Run without arguments to launch the interactive menu.`,
	Version:       version.Short(),
	SilenceUsage:  true, // We handle errors manually, but silence usage on error
	SilenceErrors: true, // We format errors ourselves for consistent output
	RunE:          withApp(runInteractiveMenu),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Launch interactive menu",
	RunE:  withApp(runInteractiveMenu),
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Settings file (default "+config.DefaultConfigPath()+")")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; use remembered values and fail when input is missing")
	flags.String("fstab", "", "Static mount table to edit (default /etc/fstab)")
	flags.String("credentials-dir", "", "Directory for credentials files referenced from fstab")
	flags.String("secret-backend", "", "Where saved passwords live: keyring or memory")
	flags.String("metrics-textfile", "", "Write outcome counters to this node_exporter textfile")
	flags.String("log-level", "", "Diagnostic log level: debug, info, warn or error")
	flags.String("log-format", "", "Diagnostic log format: console or json")
	flags.Bool("no-sudo", false, "Do not run mount and umount through sudo")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(menuCmd)
}

// appFunc is a command body that needs the wired application
type appFunc func(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error

// withApp loads the settings, wires the application and tears it down
// after fn returns
func withApp(fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		settings, err := config.LoadSettings(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		app, err := cli.NewAppContext(settings, cli.Options{NonInteractive: nonInteractive})
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer func() {
			if closeErr := app.Close(); closeErr != nil {
				app.UI.Warningf("Cleanup failed: %v", closeErr)
			}
		}()

		return fn(app.Context(cmd.Context()), app, cmd, args)
	}
}

func runInteractiveMenu(ctx context.Context, app *cli.AppContext, cmd *cobra.Command, args []string) error {
	if app.UI.IsNonInteractive() {
		return fmt.Errorf("the menu needs a terminal; use a subcommand with --non-interactive")
	}
	return cli.NewMenu(app).Show(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		// Failures already reported through the UI only set the exit code
		if !errors.Is(err, cli.ErrFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
