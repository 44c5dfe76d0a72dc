package system

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"testing"
	"time"

	mount "k8s.io/mount-utils"
)

// Test CommandExists
func TestCommandExists(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"sh exists", "sh", true},
		{"nonexistent command", "this-command-does-not-exist-xyz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CommandExists(tt.command)
			if got != tt.want {
				t.Errorf("CommandExists(%s) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestPrivilegedRunner(t *testing.T) {
	tests := []struct {
		name    string
		useSudo bool
		euid    int
		want    string
	}{
		{"unprivileged with sudo", true, 1000, "sudo -n mount /mnt/data"},
		{"root skips sudo", true, 0, "mount /mnt/data"},
		{"sudo disabled", false, 1000, "mount /mnt/data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := NewMockCommandRunner()
			runner := NewPrivilegedRunner(fake, tt.useSudo)
			runner.euid = func() int { return tt.euid }

			if _, err := runner.Run("mount", "/mnt/data"); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !fake.Ran(tt.want) {
				t.Errorf("expected %q, commands: %v", tt.want, fake.Commands)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(&MockExitError{Code: 32}); got != 32 {
		t.Errorf("ExitCode(mock) = %d, want 32", got)
	}
	if got := ExitCode(errors.New("exec: not found")); got != -1 {
		t.Errorf("ExitCode(plain) = %d, want -1", got)
	}

	_, err := NewCommandRunner().Run("sh", "-c", "exit 3")
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *exec.ExitError, got %v", err)
	}
	if got := ExitCode(err); got != 3 {
		t.Errorf("ExitCode(exec) = %d, want 3", got)
	}
}

func TestMockCommandRunnerResponses(t *testing.T) {
	fake := NewMockCommandRunner()
	fake.Respond("umount /mnt/data", "umount: /mnt/data: target is busy.", 32)

	out, err := fake.Run("umount", "/mnt/data")
	if ExitCode(err) != 32 {
		t.Errorf("ExitCode() = %d, want 32", ExitCode(err))
	}
	if out != "umount: /mnt/data: target is busy." {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := fake.Run("true"); err != nil {
		t.Errorf("unknown commands should succeed, got %v", err)
	}
}

func TestMountTable(t *testing.T) {
	fake := mount.NewFakeMounter([]mount.MountPoint{
		{Device: "/dev/sda1", Path: "/", Type: "ext4"},
		{Device: "//nas/shared", Path: "/mnt/shared", Type: "cifs", Opts: []string{"rw", "vers=3.0"}},
		{Device: "nas:/export", Path: `/mnt/my\040media`, Type: "nfs4"},
	})
	table := NewMountTableWithMounter(fake)

	mounted, err := table.IsMounted("/mnt/shared")
	if err != nil || !mounted {
		t.Errorf("IsMounted(/mnt/shared) = %v, %v; want true", mounted, err)
	}

	mounted, err = table.IsMounted("/mnt/shared/")
	if err != nil || !mounted {
		t.Errorf("IsMounted(/mnt/shared/) = %v, %v; want true", mounted, err)
	}

	mounted, err = table.IsMounted("/mnt/other")
	if err != nil || mounted {
		t.Errorf("IsMounted(/mnt/other) = %v, %v; want false", mounted, err)
	}

	entry, ok, err := table.Lookup("/mnt/my media")
	if err != nil || !ok {
		t.Fatalf("Lookup(escaped path) = %v, %v", ok, err)
	}
	if entry.Device != "nas:/export" || entry.Type != "nfs4" {
		t.Errorf("Lookup() = %+v", entry)
	}

	shares, err := table.NetworkMounts()
	if err != nil {
		t.Fatalf("NetworkMounts() error = %v", err)
	}
	if len(shares) != 2 {
		t.Errorf("NetworkMounts() returned %d entries, want 2: %+v", len(shares), shares)
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	for _, fsType := range []string{"cifs", "smb3", "nfs", "nfs4"} {
		if !IsNetworkFilesystem(fsType) {
			t.Errorf("IsNetworkFilesystem(%s) = false, want true", fsType)
		}
	}
	for _, fsType := range []string{"ext4", "tmpfs", "fuse.sshfs"} {
		if IsNetworkFilesystem(fsType) {
			t.Errorf("IsNetworkFilesystem(%s) = true, want false", fsType)
		}
	}
}

func TestNetworkProbe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	n := NewNetwork(2 * time.Second)
	ctx := context.Background()

	r := n.Probe(ctx, "127.0.0.1", port)
	if !r.Resolved || !r.PortOpen || r.Err != nil {
		t.Errorf("Probe(open port) = %+v", r)
	}

	listener.Close()
	r = n.Probe(ctx, "127.0.0.1", port)
	if !r.Resolved || r.PortOpen {
		t.Errorf("Probe(closed port) = %+v", r)
	}

	r = n.Probe(ctx, "host.invalid", PortSMB)
	if r.Resolved || r.Err == nil {
		t.Errorf("Probe(unresolvable) = %+v", r)
	}
}

func TestServiceManagerDaemonReload(t *testing.T) {
	fake := NewMockCommandRunner()
	sm := NewServiceManager(fake)

	if err := sm.DaemonReload(); err != nil {
		t.Fatalf("DaemonReload() error = %v", err)
	}
	if !fake.Ran("systemctl daemon-reload") {
		t.Errorf("expected daemon-reload, commands: %v", fake.Commands)
	}

	fake.Respond("systemctl show --property=ActiveState --value mnt-nas.mount", "active\n", 0)
	state, err := sm.UnitState("mnt-nas.mount")
	if err != nil || state != "active" {
		t.Errorf("UnitState() = %q, %v; want active", state, err)
	}

	fake.Respond("systemctl daemon-reload", "Failed to connect to bus", 1)
	if err := sm.DaemonReload(); err == nil {
		t.Error("expected DaemonReload() to fail")
	}
}
