package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/mount"
	"github.com/zoro11031/netmount/internal/service"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/ui"
)

// MountRequest is a validated share plus what to do besides mounting it
type MountRequest struct {
	Params          share.MountParameters
	Register        bool
	SaveCredentials bool
}

// MountShare mounts req.Params and reports the outcome
func MountShare(ctx context.Context, app *AppContext, req MountRequest) error {
	p := req.Params
	if req.SaveCredentials {
		if err := app.Service.SaveCredential(p); err != nil {
			ReportCredentialError(app.UI, err)
			return ErrFailed
		}
		app.UI.Successf("Saved the password of %s for %s", p.Username(), p.Device())
	}

	if req.Register {
		out := app.Service.MountAndRegister(ctx, p)
		return ReportRegistration(app.UI, p, out, app.Service.FstabPath())
	}
	return ReportMount(app.UI, p, app.Service.Mount(ctx, p))
}

// MountInteractive asks for a share, probes its server, mounts it and
// remembers the answers for next time
func MountInteractive(ctx context.Context, app *AppContext) error {
	w := NewShareWizard(app.UI, app.Config, app.Service)

	p, err := w.PromptShare()
	if err != nil {
		return err
	}
	if err := w.CheckServer(ctx, p); err != nil {
		return err
	}
	register, err := w.PromptAddToFstab()
	if err != nil {
		return fmt.Errorf("failed to prompt: %w", err)
	}
	save, err := w.PromptSaveCredentials(p)
	if err != nil {
		return fmt.Errorf("failed to prompt: %w", err)
	}

	err = MountShare(ctx, app, MountRequest{Params: p, Register: register, SaveCredentials: save})
	if rememberErr := w.Remember(p, register, save); rememberErr != nil {
		app.UI.Warningf("Could not remember these values: %v", rememberErr)
	}
	return err
}

// MountBatchFile mounts every share listed in a YAML file
func MountBatchFile(ctx context.Context, app *AppContext, path string) error {
	items, err := service.LoadBatchFile(path)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		app.UI.Warningf("%s lists no shares", path)
		return nil
	}

	app.UI.Infof("Mounting %d shares from %s...", len(items), path)
	failed := 0
	for _, r := range app.Service.MountBatch(ctx, items) {
		if r.Err != nil {
			app.UI.Errorf("Skipped %s: %v", batchLabel(r.Item), r.Err)
			failed++
			continue
		}
		if r.Item.Register {
			err = ReportRegistration(app.UI, r.Params, r.Outcome, app.Service.FstabPath())
		} else {
			err = ReportMount(app.UI, r.Params, r.Outcome.Mount)
		}
		if err != nil {
			failed++
		}
	}

	if failed > 0 {
		app.UI.Errorf("%d of %d shares failed", failed, len(items))
		return ErrFailed
	}
	app.UI.Successf("All %d shares are mounted", len(items))
	return nil
}

func batchLabel(item service.BatchItem) string {
	if item.MountPoint != "" {
		return item.MountPoint
	}
	return item.Server + ":" + item.Share
}

// UnmountShare unmounts mountPoint and, with unregister, removes its fstab
// entry
func UnmountShare(ctx context.Context, app *AppContext, mountPoint string, opts mount.UnmountOptions, unregister bool) error {
	if unregister {
		out := app.Service.UnmountAndUnregister(ctx, mountPoint, opts)
		return ReportUnregistration(app.UI, mountPoint, out, app.Service.FstabPath())
	}
	return ReportUnmount(app.UI, mountPoint, app.Service.Unmount(ctx, mountPoint, opts))
}

// UnmountInteractive asks which share to unmount
func UnmountInteractive(ctx context.Context, app *AppContext) error {
	w := NewShareWizard(app.UI, app.Config, app.Service)
	mountPoint, err := w.PromptMountPoint("Which share should be unmounted?")
	if err != nil {
		return err
	}
	unregister, err := app.UI.PromptYesNo(fmt.Sprintf("Also remove it from %s?", app.Service.FstabPath()), false)
	if err != nil {
		return fmt.Errorf("failed to prompt: %w", err)
	}
	return UnmountShare(ctx, app, mountPoint, mount.UnmountOptions{}, unregister)
}

// CheckInteractive asks for a share and probes its server
func CheckInteractive(ctx context.Context, app *AppContext) error {
	w := NewShareWizard(app.UI, app.Config, app.Service)
	p, err := w.PromptShare()
	if err != nil {
		return err
	}
	return CheckShare(ctx, app, p)
}

// CheckShare probes the server of p
func CheckShare(ctx context.Context, app *AppContext, p share.MountParameters) error {
	app.UI.Infof("Testing connection to %s...", p.Server())
	if !ReportReachability(app.UI, p.Type(), app.Service.Check(ctx, p)) {
		return ErrFailed
	}
	return nil
}

// ShowStatus prints the registered shares, pending registrations and
// network filesystems mounted outside fstab
func ShowStatus(app *AppContext) error {
	out := app.UI.Writer()

	statuses, err := app.Service.Status()
	if err != nil {
		return err
	}
	app.UI.Step(fmt.Sprintf("Shares in %s", app.Service.FstabPath()))
	if len(statuses) == 0 {
		app.UI.Info("No network shares are registered")
	} else {
		rows := make([][]string, 0, len(statuses))
		for _, st := range statuses {
			state := "no"
			switch {
			case st.Err != nil:
				state = "unknown"
				app.UI.Warning(st.Err.Error())
			case st.Mounted:
				state = "yes"
			}
			rows = append(rows, []string{st.Entry.MountPoint, st.Entry.Device, st.Entry.Type, state})
		}
		if err := ui.Table(out, []string{"MOUNT POINT", "DEVICE", "TYPE", "MOUNTED"}, rows); err != nil {
			return err
		}
	}

	pending, err := app.Service.Pending()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		app.UI.Step("Pending fstab registrations")
		for _, pr := range pending {
			app.UI.Warningf("%s (since %s): %s", pr.MountPoint, pr.FailedAt.Local().Format("2006-01-02 15:04"), pr.Error)
		}
		app.UI.Info("Run 'netmount fstab retry' to register them again")
	}

	active, err := app.Service.ActiveMounts()
	if err != nil {
		return err
	}
	registered := make([]string, 0, 2*len(statuses))
	for _, st := range statuses {
		registered = append(registered, st.Entry.MountPoint, st.Path)
	}
	var rows [][]string
	for _, m := range active {
		if slices.Contains(registered, m.Path) {
			continue
		}
		rows = append(rows, []string{m.Path, m.Device, m.Type})
	}
	if len(rows) > 0 {
		app.UI.Step("Mounted but not in fstab")
		if err := ui.Table(out, []string{"MOUNT POINT", "DEVICE", "TYPE"}, rows); err != nil {
			return err
		}
	}
	return nil
}

// ListFstab writes the entries of the table to w as a table or as YAML.
// Inline passwords are masked.
func ListFstab(app *AppContext, w io.Writer, format string, networkOnly bool) error {
	var entries []fstab.Entry
	for e, err := range app.Service.ListFstabEntries() {
		if err != nil {
			return err
		}
		if networkOnly && !e.IsNetworkShare() {
			continue
		}
		entries = append(entries, e.Redacted())
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]fstab.Entry{"entries": entries}); err != nil {
			return fmt.Errorf("failed to encode entries: %w", err)
		}
		return enc.Close()
	case "table", "":
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.Device, e.MountPoint, e.Type, strings.Join(e.Options, ",")})
		}
		return ui.Table(w, []string{"DEVICE", "MOUNT POINT", "TYPE", "OPTIONS"}, rows)
	default:
		return fmt.Errorf("unknown output format %q (want table or yaml)", format)
	}
}

// PurgeCredentials deletes credentials files no fstab entry references
func PurgeCredentials(app *AppContext, dryRun bool) error {
	files, err := app.Service.PurgeUnusedCredentials(dryRun)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		app.UI.Info("No unused credentials files")
		return nil
	}
	for _, f := range files {
		if dryRun {
			app.UI.Infof("Would delete %s (%s)", f.Path, f.Username)
		} else {
			app.UI.Successf("Deleted %s (%s)", f.Path, f.Username)
		}
	}
	return nil
}

// RetryPending registers the pending shares again
func RetryPending(ctx context.Context, app *AppContext) error {
	pending, err := app.Service.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		app.UI.Info("No fstab registrations are pending")
		return nil
	}

	failed, err := app.Service.RetryPending(ctx)
	if err != nil {
		return err
	}
	if done := len(pending) - len(failed); done > 0 {
		app.UI.Successf("Registered %d of %d pending shares", done, len(pending))
	}
	if len(failed) == 0 {
		return nil
	}
	mountPoints := make([]string, 0, len(failed))
	for mp := range failed {
		mountPoints = append(mountPoints, mp)
	}
	slices.Sort(mountPoints)
	for _, mp := range mountPoints {
		app.UI.Errorf("%s: %v", mp, failed[mp])
	}
	return ErrFailed
}
