package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mountutils "k8s.io/mount-utils"

	"github.com/zoro11031/netmount/internal/config"
	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/mount"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/system"
	"github.com/zoro11031/netmount/internal/ui"
)

type testApp struct {
	*AppContext
	out       *bytes.Buffer
	dir       string
	mechanism *mount.FakeMechanism
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()

	s := config.DefaultSettings()
	s.FstabPath = filepath.Join(dir, "fstab")
	s.CredentialsDir = filepath.Join(dir, "credentials")
	s.RuntimeDir = filepath.Join(dir, "run")
	s.PendingDir = filepath.Join(dir, "pending")
	s.StateFile = filepath.Join(dir, "netmount.conf")
	s.MetricsTextfile = filepath.Join(dir, "metrics", "netmount.prom")
	s.SecretBackend = "memory"
	s.UseSudo = false
	s.DaemonReload = false
	s.BackupFstab = false
	require.NoError(t, s.Validate())

	mounter := mountutils.NewFakeMounter(nil)
	mechanism := mount.NewFakeMechanism(mounter)
	app, err := NewAppContext(s, Options{
		NonInteractive: true,
		Mechanism:      mechanism,
		Table:          system.NewMountTableWithMounter(mounter),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	app.UI = ui.NewWithWriter(&out)
	app.UI.SetNonInteractive(true)
	return &testApp{AppContext: app, out: &out, dir: dir, mechanism: mechanism}
}

func (a *testApp) params(t *testing.T, raw share.RawFields) share.MountParameters {
	t.Helper()
	if !filepath.IsAbs(raw.MountPoint) {
		raw.MountPoint = filepath.Join(a.dir, raw.MountPoint)
	}
	p, err := share.Validate(raw)
	require.NoError(t, err)
	return p
}

func nfsFields(mountPoint string) share.RawFields {
	return share.RawFields{
		Server:     "nas.local",
		Share:      "/srv/media",
		MountPoint: mountPoint,
		Type:       "nfs",
	}
}

func cifsFields(mountPoint string) share.RawFields {
	return share.RawFields{
		Server:     "fileserver",
		Share:      "team",
		MountPoint: mountPoint,
		Type:       "cifs",
		Username:   "bob",
		Password:   "hunter2",
	}
}

func TestMountShareRegistersInFstab(t *testing.T) {
	app := newTestApp(t)
	p := app.params(t, nfsFields("media"))

	err := MountShare(context.Background(), app.AppContext, MountRequest{Params: p, Register: true})
	require.NoError(t, err)

	data, err := os.ReadFile(app.Settings.FstabPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "nas.local:/srv/media "+p.MountPoint()+" nfs _netdev,nofail 0 0")
	assert.Contains(t, app.out.String(), "Mounted nas.local:/srv/media")
	assert.Contains(t, app.out.String(), "Added "+p.MountPoint())
}

func TestMountShareSavesCredentials(t *testing.T) {
	app := newTestApp(t)
	p := app.params(t, cifsFields("team"))

	err := MountShare(context.Background(), app.AppContext, MountRequest{Params: p, SaveCredentials: true})
	require.NoError(t, err)
	assert.Contains(t, app.out.String(), "Saved the password of bob")

	// A later mount without a typed password uses the saved one
	require.Equal(t, mount.UnmountSuccess, app.Service.Unmount(context.Background(), p.MountPoint(), mount.UnmountOptions{}).Status)
	again := app.params(t, share.RawFields{
		Server: "fileserver", Share: "team", MountPoint: p.MountPoint(), Type: "cifs", Username: "bob",
	})
	require.NoError(t, MountShare(context.Background(), app.AppContext, MountRequest{Params: again}))
	assert.Equal(t, 2, app.mechanism.MountCalls())
}

func TestReportMountExplainsMissingPassword(t *testing.T) {
	app := newTestApp(t)
	p := app.params(t, share.RawFields{
		Server: "fileserver", Share: "team", MountPoint: "team", Type: "cifs", Username: "bob",
	})

	err := MountShare(context.Background(), app.AppContext, MountRequest{Params: p})
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, app.out.String(), "the server rejected the credentials")
	assert.Contains(t, app.out.String(), "netmount credentials save")
	assert.Zero(t, app.mechanism.MountCalls())
}

func TestReportMountShowsDiagnosticAndHints(t *testing.T) {
	var out bytes.Buffer
	u := ui.NewWithWriter(&out)
	p, err := share.Validate(share.RawFields{Server: "nas", Share: "/x", MountPoint: "/mnt/x", Type: "nfs"})
	require.NoError(t, err)

	err = ReportMount(u, p, mount.MountResult{
		Status:     mount.MountUnreachable,
		MountPoint: "/mnt/x",
		Diagnostic: "mount.nfs: Connection timed out",
	})
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, out.String(), "    mount.nfs: Connection timed out")
	assert.Contains(t, out.String(), "port 2049")
}

func TestUnmountShareUnregisters(t *testing.T) {
	app := newTestApp(t)
	p := app.params(t, nfsFields("media"))
	ctx := context.Background()
	require.NoError(t, MountShare(ctx, app.AppContext, MountRequest{Params: p, Register: true}))

	require.NoError(t, UnmountShare(ctx, app.AppContext, p.MountPoint(), mount.UnmountOptions{}, true))
	assert.Contains(t, app.out.String(), "Removed "+p.MountPoint())

	data, err := os.ReadFile(app.Settings.FstabPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "nas.local")
}

func TestUnmountBusyIsReported(t *testing.T) {
	app := newTestApp(t)
	p := app.params(t, nfsFields("media"))
	ctx := context.Background()
	require.NoError(t, MountShare(ctx, app.AppContext, MountRequest{Params: p}))

	app.mechanism.UnmountFunc = func(string, mount.UnmountOptions) mount.Outcome {
		return mount.Outcome{ExitCode: 32, Output: "umount: target is busy."}
	}
	err := UnmountShare(ctx, app.AppContext, p.MountPoint(), mount.UnmountOptions{}, true)
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, app.out.String(), "is busy")
	assert.Contains(t, app.out.String(), "--lazy")
}

func TestMountBatchFile(t *testing.T) {
	app := newTestApp(t)
	batch := filepath.Join(app.dir, "shares.yaml")
	content := "shares:\n" +
		"  - server: nas.local\n    share: /srv/media\n    type: nfs\n    mount_point: " + filepath.Join(app.dir, "media") + "\n    register: true\n" +
		"  - server: nas.local\n    share: /srv/backup\n    type: nfs\n    mount_point: relative/path\n"
	require.NoError(t, os.WriteFile(batch, []byte(content), 0644))

	err := MountBatchFile(context.Background(), app.AppContext, batch)
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, app.out.String(), "Skipped relative/path")
	assert.Contains(t, app.out.String(), "1 of 2 shares failed")
	assert.Equal(t, 1, app.mechanism.MountCalls())
}

func TestListFstabMasksInlinePasswords(t *testing.T) {
	app := newTestApp(t)
	seed := "UUID=abcd / ext4 defaults 0 1\n" +
		"//nas/old /mnt/old cifs username=bob,password=hunter2 0 0\n"
	require.NoError(t, os.WriteFile(app.Settings.FstabPath, []byte(seed), 0644))

	var yamlOut bytes.Buffer
	require.NoError(t, ListFstab(app.AppContext, &yamlOut, "yaml", true))
	assert.Contains(t, yamlOut.String(), "password=****")
	assert.NotContains(t, yamlOut.String(), "hunter2")
	assert.NotContains(t, yamlOut.String(), "UUID=abcd")

	var tableOut bytes.Buffer
	require.NoError(t, ListFstab(app.AppContext, &tableOut, "table", false))
	lines := strings.Split(strings.TrimSpace(tableOut.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "DEVICE"))
	assert.NotContains(t, tableOut.String(), "hunter2")

	assert.Error(t, ListFstab(app.AppContext, &tableOut, "json", false))
}

func TestShowStatus(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	registered := app.params(t, nfsFields("media"))
	adhoc := app.params(t, share.RawFields{Server: "nas.local", Share: "/srv/tmp", MountPoint: "tmp", Type: "nfs"})
	require.NoError(t, MountShare(ctx, app.AppContext, MountRequest{Params: registered, Register: true}))
	require.NoError(t, MountShare(ctx, app.AppContext, MountRequest{Params: adhoc}))

	require.NoError(t, ShowStatus(app.AppContext))
	out := app.out.String()
	assert.Contains(t, out, "Shares in "+app.Settings.FstabPath)
	assert.Contains(t, out, "Mounted but not in fstab")
	assert.Contains(t, out, adhoc.MountPoint())
}

func TestPurgeAndRetryWithNothingToDo(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, PurgeCredentials(app.AppContext, true))
	assert.Contains(t, app.out.String(), "No unused credentials files")

	require.NoError(t, RetryPending(context.Background(), app.AppContext))
	assert.Contains(t, app.out.String(), "No fstab registrations are pending")
}

func TestWizardUsesRememberedValues(t *testing.T) {
	app := newTestApp(t)
	w := NewShareWizard(app.UI, app.Config, app.Service)
	p := app.params(t, share.RawFields{
		Server: "nas.local", Share: "/srv/media", MountPoint: "media", Type: "nfs", Options: []string{"vers=4.1"},
	})
	require.NoError(t, w.Remember(p, true, false))

	data, err := os.ReadFile(app.Settings.StateFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "LAST_SERVER=nas.local")
	assert.Contains(t, string(data), "LAST_ADD_TO_FSTAB=true")

	// Non-interactive prompts take the defaults, which are the remembered values
	got, err := w.PromptShare()
	require.NoError(t, err)
	assert.True(t, p.Equal(got), "got %s", got)
	assert.Contains(t, app.out.String(), "Previously used share")

	register, err := w.PromptAddToFstab()
	require.NoError(t, err)
	assert.True(t, register)
}

func TestWizardNeverRemembersPassword(t *testing.T) {
	app := newTestApp(t)
	w := NewShareWizard(app.UI, app.Config, app.Service)
	p := app.params(t, cifsFields("team"))
	require.NoError(t, w.Remember(p, false, true))

	data, err := os.ReadFile(app.Settings.StateFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), "LAST_USERNAME=bob")

	save, err := w.PromptSaveCredentials(p)
	require.NoError(t, err)
	assert.True(t, save)
}

func TestWizardNeedsUsernameNonInteractively(t *testing.T) {
	app := newTestApp(t)
	w := NewShareWizard(app.UI, app.Config, app.Service)
	require.NoError(t, app.Config.SetMany(map[string]string{
		config.KeyLastType:   "cifs",
		config.KeyLastServer: "fileserver",
		config.KeyLastShare:  "team",
	}))

	// No remembered username and no guest option
	_, err := w.PromptShare()
	assert.ErrorIs(t, err, ui.ErrNonInteractive)

	require.NoError(t, app.Config.Set(config.KeyLastMountPoint, "relative"))
	require.NoError(t, app.Config.Set(config.KeyLastOptions, "guest"))
	_, err = w.PromptShare()
	assert.ErrorIs(t, err, ui.ErrNonInteractive)
}

func TestTroubleshootReportsUnmountedShare(t *testing.T) {
	app := newTestApp(t)
	mp := filepath.Join(app.dir, "media")
	line := "nas.local:/srv/media " + mp + " nfs _netdev,nofail 0 0\n"
	require.NoError(t, os.WriteFile(app.Settings.FstabPath, []byte(line), 0644))

	err := Troubleshoot(context.Background(), app.AppContext, false)
	assert.ErrorIs(t, err, ErrFailed)

	out := app.out.String()
	assert.Contains(t, out, mp+" is NOT mounted")
	assert.Contains(t, out, "Mount unit:")
	assert.Contains(t, out, "Every line parses")
	assert.Contains(t, out, "problem(s) found")
}

func TestServerOf(t *testing.T) {
	tests := []struct {
		device string
		want   string
	}{
		{"//fileserver/team", "fileserver"},
		{"//10.0.0.5/media/sub", "10.0.0.5"},
		{"nas.local:/srv/media", "nas.local"},
		{"[fd00::1]:/export", "fd00::1"},
		{"/dev/sda1", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, serverOf(fstab.Entry{Device: tt.device}), tt.device)
	}
}

func TestSplitOptions(t *testing.T) {
	assert.Equal(t, []string{"vers=3.0", "ro"}, splitOptions(" vers=3.0 ,, ro,"))
	assert.Nil(t, splitOptions(""))
}

func TestCloseWritesMetricsTextfile(t *testing.T) {
	app := newTestApp(t)
	p := app.params(t, nfsFields("media"))
	require.NoError(t, MountShare(context.Background(), app.AppContext, MountRequest{Params: p}))

	require.NoError(t, app.Close())
	data, err := os.ReadFile(app.Settings.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `netmount_mount_total{status="success",type="nfs"} 1`)
}

func TestWizardForget(t *testing.T) {
	app := newTestApp(t)
	w := NewShareWizard(app.UI, app.Config, app.Service)

	n, err := w.Forget()
	require.NoError(t, err)
	assert.Zero(t, n)

	p := app.params(t, nfsFields("media"))
	require.NoError(t, w.Remember(p, true, false))
	n, err = w.Forget()
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.False(t, app.Config.Exists(config.KeyLastServer))

	app.out.Reset()
	_, err = w.PromptShare()
	assert.Error(t, err, "nothing left to default to")
	assert.NotContains(t, app.out.String(), "Previously used share")
}
