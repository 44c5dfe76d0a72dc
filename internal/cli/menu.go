package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// ErrExit is returned when the user chooses to exit the menu
var ErrExit = errors.New("exit")

// Menu provides an interactive menu interface
type Menu struct {
	app *AppContext
	in  *bufio.Reader
	out io.Writer
}

// NewMenu creates a new Menu instance
func NewMenu(app *AppContext) *Menu {
	return &Menu{app: app, in: bufio.NewReader(os.Stdin), out: app.UI.Writer()}
}

// clearScreen clears the terminal screen using ANSI escape codes
func (m *Menu) clearScreen() {
	fmt.Fprint(m.out, "\033[2J\033[H")
}

// pause waits for Enter
func (m *Menu) pause() {
	fmt.Fprintln(m.out)
	m.app.UI.Info("Press Enter to return to menu...")
	_, _ = m.in.ReadString('\n')
}

// Show displays the main menu and handles user input until the user exits
// or ctx is cancelled
func (m *Menu) Show(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.clearScreen()
		m.displayMenu()

		choice, err := m.app.UI.PromptInput("Enter your choice", "")
		if err != nil {
			return err
		}

		choice = strings.ToUpper(strings.TrimSpace(choice))

		err = m.handleChoice(ctx, choice)
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrFailed) {
			m.app.UI.Error(err.Error())
		}
		m.pause()
	}
}

// displayMenu displays the main menu
func (m *Menu) displayMenu() {
	bold := color.New(color.Bold)

	m.app.UI.Header("netmount: network share mounts")
	m.app.UI.Infof("Static mount table: %s", m.app.Service.FstabPath())
	if pending, err := m.app.Service.Pending(); err == nil && len(pending) > 0 {
		m.app.UI.Warningf("%d fstab registration(s) pending, use [R] to retry", len(pending))
	}
	fmt.Fprintln(m.out)

	m.app.UI.Separator()
	m.app.UI.Info("Shares:")
	m.app.UI.Separator()
	fmt.Fprintln(m.out)

	items := []struct{ key, text string }{
		{"1", "Mount a share"},
		{"2", "Unmount a share"},
		{"3", "Show status"},
		{"4", "Check connection to a server"},
	}
	for _, it := range items {
		bold.Fprintf(m.out, "  [%s] ", it.key)
		fmt.Fprintln(m.out, it.text)
	}
	fmt.Fprintln(m.out)

	m.app.UI.Separator()
	m.app.UI.Info("Maintenance:")
	m.app.UI.Separator()
	fmt.Fprintln(m.out)

	items = []struct{ key, text string }{
		{"L", "List fstab entries"},
		{"R", "Retry pending fstab registrations"},
		{"P", "Purge unused credentials files"},
		{"T", "Troubleshooting"},
		{"H", "Help"},
		{"X", "Exit"},
	}
	for _, it := range items {
		bold.Fprintf(m.out, "  [%s] ", it.key)
		fmt.Fprintln(m.out, it.text)
	}
	fmt.Fprintln(m.out)
}

// handleChoice processes the user's menu choice
func (m *Menu) handleChoice(ctx context.Context, choice string) error {
	switch choice {
	case "1":
		m.clearScreen()
		m.app.UI.Header("Mount a share")
		return MountInteractive(ctx, m.app)
	case "2":
		m.clearScreen()
		m.app.UI.Header("Unmount a share")
		return UnmountInteractive(ctx, m.app)
	case "3":
		m.clearScreen()
		m.app.UI.Header("Status")
		return ShowStatus(m.app)
	case "4":
		m.clearScreen()
		m.app.UI.Header("Check connection")
		return CheckInteractive(ctx, m.app)
	case "L":
		m.clearScreen()
		m.app.UI.Header("fstab entries")
		return ListFstab(m.app, m.out, "table", false)
	case "R":
		m.clearScreen()
		m.app.UI.Header("Retry pending registrations")
		return RetryPending(ctx, m.app)
	case "P":
		return m.purgeCredentials()
	case "T":
		m.clearScreen()
		m.app.UI.Header("Troubleshooting")
		return Troubleshoot(ctx, m.app, true)
	case "H":
		m.showHelp()
		return nil
	case "X", "Q":
		return ErrExit
	default:
		return fmt.Errorf("invalid choice: %s", choice)
	}
}

// purgeCredentials lists unused credentials files and deletes them after
// confirmation
func (m *Menu) purgeCredentials() error {
	m.clearScreen()
	m.app.UI.Header("Purge credentials files")

	unused, err := m.app.Service.UnusedCredentials()
	if err != nil {
		return err
	}
	if len(unused) == 0 {
		m.app.UI.Info("No unused credentials files")
		return nil
	}
	if err := PurgeCredentials(m.app, true); err != nil {
		return err
	}
	fmt.Fprintln(m.out)

	confirm, err := m.app.UI.PromptYesNo("Delete these files?", false)
	if err != nil {
		return err
	}
	if !confirm {
		m.app.UI.Info("Purge cancelled")
		return nil
	}
	return PurgeCredentials(m.app, false)
}

// showHelp displays help information
func (m *Menu) showHelp() {
	m.clearScreen()
	m.app.UI.Header("Help")

	help := `
netmount mounts CIFS (Samba/Windows) and NFS shares and can register them in
/etc/fstab so they come back at boot.

MOUNTING:

  Mounting asks for the server, the share or export and a local mount
  point. CIFS shares also need a username and password unless they allow
  guest access. The password is handed to mount.cifs in a private
  credentials file that is deleted right after the mount; it never appears
  in the process list.

  Passwords can be saved in the system keyring. Shares registered in fstab
  get a credentials file below /etc/netmount/credentials, readable only
  by root.

FSTAB:

  Entries are written with _netdev,nofail so a missing server never blocks
  boot. Every other line of the file is kept as it is. If the mount works
  but fstab cannot be written, the share stays mounted and the
  registration is kept as pending until [R] succeeds.

CONFIGURATION FILES:

  Settings:        ~/.config/netmount/config.yaml (NETMOUNT_* overrides)
  Last answers:    ~/.netmount.conf
  Pending entries: ~/.local/netmount/pending/

COMMAND-LINE MODE:

    netmount mount                     # Interactive mount
    netmount mount --file shares.yaml  # Mount a list of shares
    netmount unmount /mnt/media        # Unmount
    netmount fstab list                # Show fstab entries
    netmount status                    # Registered and mounted shares
    netmount credentials purge         # Delete unused credentials files
    netmount troubleshoot              # Run diagnostics
`

	fmt.Fprintln(m.out, help)
}
