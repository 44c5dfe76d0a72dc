package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/service"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/system"
)

// mountHelpers are the programs mount(8) hands each filesystem type to
var mountHelpers = []struct {
	fsType share.FilesystemType
	helper string
}{
	{share.CIFS, "mount.cifs"},
	{share.NFS, "mount.nfs"},
}

// Troubleshoot runs diagnostics on the host and every registered share.
// It returns ErrFailed when any check found a problem.
func Troubleshoot(ctx context.Context, app *AppContext, probe bool) error {
	problems := 0
	problems += checkEnvironment(app)
	problems += checkTable(app)
	problems += checkShares(ctx, app, probe)
	problems += checkCredentialsDir(app)

	app.UI.Print("")
	app.UI.Separator()
	if problems > 0 {
		app.UI.Warningf("%d problem(s) found", problems)
		app.UI.Info("For mount errors logged by the kernel, use:")
		app.UI.Info("  sudo dmesg | grep -iE 'cifs|nfs'")
		return ErrFailed
	}
	app.UI.Success("No problems found")
	return nil
}

func checkEnvironment(app *AppContext) int {
	app.UI.Step("Environment")
	problems := 0

	switch {
	case system.IsRoot():
		app.UI.Success("Running as root")
	case app.Runner.Escalates():
		app.UI.Info("Not root: mount and umount run through sudo -n")
	default:
		app.UI.Warning("Not root and sudo is disabled: mounting will fail")
		problems++
	}

	for _, bin := range []string{app.Settings.MountBinary, app.Settings.UmountBinary} {
		if system.CommandExists(bin) {
			app.UI.Successf("%s found", bin)
		} else {
			app.UI.Errorf("%s not found in PATH", bin)
			problems++
		}
	}
	for _, h := range mountHelpers {
		if system.CommandExists(h.helper) || system.CommandExists(filepath.Join("/sbin", h.helper)) {
			app.UI.Successf("%s found", h.helper)
		} else {
			app.UI.Infof("%s not found; %s shares can't be mounted", h.helper, h.fsType)
		}
	}
	return problems
}

func checkTable(app *AppContext) int {
	path := app.Service.FstabPath()
	app.UI.Step("Static mount table " + path)

	exists, err := app.FileSystem.FileExists(path)
	if err != nil {
		app.UI.Errorf("Cannot read %s: %v", path, err)
		return 1
	}
	if !exists {
		app.UI.Infof("%s does not exist yet; it is created on the first registration", path)
		return 0
	}

	anomalies, err := app.Service.FstabAnomalies()
	if err != nil {
		app.UI.Errorf("Cannot parse %s: %v", path, err)
		return 1
	}
	if len(anomalies) == 0 {
		app.UI.Success("Every line parses")
		return 0
	}
	for _, a := range anomalies {
		app.UI.Warning(a.String())
	}
	app.UI.Info("These lines are kept as they are but mount -a may reject them")
	return len(anomalies)
}

func checkShares(ctx context.Context, app *AppContext, probe bool) int {
	app.UI.Step("Registered shares")

	statuses, err := app.Service.Status()
	if err != nil {
		app.UI.Errorf("Cannot list shares: %v", err)
		return 1
	}
	if len(statuses) == 0 {
		app.UI.Info("No network shares are registered")
	}

	problems := 0
	for _, st := range statuses {
		if st.Err != nil {
			problems++
			app.UI.Errorf("%s: %v", st.Entry.MountPoint, st.Err)
			continue
		}
		if st.Mounted {
			checkMountedShare(app, st)
			continue
		}
		problems++
		app.UI.Errorf("%s is NOT mounted", st.Entry.MountPoint)
		reportMountUnit(app, st.Entry)
		if probe {
			if host := serverOf(st.Entry); host != "" {
				fsType, _ := share.ParseFilesystemType(st.Entry.Type)
				r := app.Service.CheckServer(ctx, host, fsType)
				ReportReachability(app.UI, fsType, r)
			}
		}
	}

	pending, err := app.Service.Pending()
	if err == nil && len(pending) > 0 {
		app.UI.Warningf("%d registration(s) pending; run 'netmount fstab retry'", len(pending))
		problems += len(pending)
	}
	return problems
}

func checkMountedShare(app *AppContext, st service.ShareStatus) {
	mp := st.Entry.MountPoint
	app.UI.Successf("%s is mounted", mp)

	if entries, err := os.ReadDir(mp); err == nil {
		app.UI.Successf("  Readable: Yes (%d entries)", len(entries))
	} else {
		app.UI.Error("  Readable: No")
	}

	if f, err := os.CreateTemp(mp, ".netmount-write-test-*"); err == nil {
		f.Close()
		os.Remove(f.Name())
		app.UI.Success("  Writable: Yes")
	} else {
		app.UI.Info("  Writable: No (may be read-only)")
	}
}

func reportMountUnit(app *AppContext, e fstab.Entry) {
	unit, err := system.GetMountUnitName(e.MountPoint)
	if err != nil {
		return
	}
	app.UI.Infof("  Mount unit: %s", unit)
	if app.Systemd == nil {
		return
	}
	if state, err := app.Systemd.UnitState(unit); err == nil {
		app.UI.Infof("  Unit state: %s", state)
	}
	app.UI.Infof("  Check with: systemctl status %s", unit)
}

// serverOf extracts the host from a //server/share or server:/export device
func serverOf(e fstab.Entry) string {
	if rest, ok := strings.CutPrefix(e.Device, "//"); ok {
		host, _, _ := strings.Cut(rest, "/")
		return host
	}
	if strings.HasPrefix(e.Device, "[") {
		host, _, _ := strings.Cut(strings.TrimPrefix(e.Device, "["), "]")
		return host
	}
	host, _, found := strings.Cut(e.Device, ":")
	if !found {
		return ""
	}
	return host
}

func checkCredentialsDir(app *AppContext) int {
	dir := app.Settings.CredentialsDir
	app.UI.Step("Credentials directory " + dir)

	exists, err := app.FileSystem.DirectoryExists(dir)
	if err != nil {
		app.UI.Errorf("Cannot read %s: %v", dir, err)
		return 1
	}
	if !exists {
		app.UI.Info("Not created yet")
		return 0
	}
	if info, err := os.Stat(dir); err == nil && info.Mode().Perm()&0077 != 0 {
		app.UI.Warningf("%s is accessible by other users (mode %o)", dir, info.Mode().Perm())
	}

	unused, err := app.Service.UnusedCredentials()
	if err != nil {
		app.UI.Errorf("Cannot list credentials files: %v", err)
		return 1
	}
	if len(unused) > 0 {
		app.UI.Infof("%d file(s) not referenced by fstab; 'netmount credentials purge' deletes them", len(unused))
	} else {
		app.UI.Success("Every credentials file is in use")
	}
	return 0
}
