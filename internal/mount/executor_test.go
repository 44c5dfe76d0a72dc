package mount

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mountutils "k8s.io/mount-utils"

	"github.com/zoro11031/netmount/internal/credentials"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/system"
)

type testEnv struct {
	executor   *Executor
	mechanism  *FakeMechanism
	fs         *system.MockFileSystem
	backend    *credentials.MemoryBackend
	store      *credentials.Store
	runtimeDir string
}

func newTestEnv(t *testing.T, points ...mountutils.MountPoint) *testEnv {
	t.Helper()
	mounter := mountutils.NewFakeMounter(points)
	env := &testEnv{
		mechanism:  NewFakeMechanism(mounter),
		fs:         system.NewMockFileSystem(),
		backend:    credentials.NewMemoryBackend(),
		runtimeDir: filepath.Join(t.TempDir(), "run"),
	}
	env.store = credentials.NewStore(env.backend)
	env.executor = NewExecutor(ExecutorConfig{
		Mechanism:  env.mechanism,
		Table:      system.NewMountTableWithMounter(mounter),
		FileSystem: env.fs,
		Store:      env.store,
		RuntimeDir: env.runtimeDir,
		Resolve:    func(p string) (string, error) { return filepath.Clean(p), nil },
	})
	return env
}

// runtimeFiles lists what is left in the runtime directory
func (env *testEnv) runtimeFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(env.runtimeDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func cifsParams(t *testing.T, mutate ...func(*share.RawFields)) share.MountParameters {
	t.Helper()
	raw := share.RawFields{
		Server:     "192.168.1.10",
		Share:      "shared",
		MountPoint: "/mnt/shared",
		Type:       "cifs",
		Username:   "alice",
		Password:   "s3cret",
		Options:    []string{"vers=3.0"},
	}
	for _, m := range mutate {
		m(&raw)
	}
	p, err := share.Validate(raw)
	require.NoError(t, err)
	return p
}

func nfsParams(t *testing.T) share.MountParameters {
	t.Helper()
	p, err := share.Validate(share.RawFields{
		Server:     "nas",
		Share:      "/export/media",
		MountPoint: "/mnt/media",
		Type:       "nfs",
		Options:    []string{"vers=4.2", "_netdev"},
	})
	require.NoError(t, err)
	return p
}

func TestMountCIFSUsesTransientCredentialsFile(t *testing.T) {
	env := newTestEnv(t)

	result := env.executor.Mount(context.Background(), cifsParams(t))
	require.Equal(t, MountSuccess, result.Status, result.Diagnostic)
	assert.True(t, result.OK())
	assert.Equal(t, "/mnt/shared", result.MountPoint)

	inv, ok := env.mechanism.LastInvocation()
	require.True(t, ok)
	assert.Equal(t, "cifs", inv.Type)
	assert.Equal(t, "//192.168.1.10/shared", inv.Device)
	assert.Equal(t, "/mnt/shared", inv.Target)
	require.Len(t, inv.Options, 2)
	assert.Equal(t, "vers=3.0", inv.Options[0])

	credPath, ok := strings.CutPrefix(inv.Options[1], "credentials=")
	require.True(t, ok, "credentials option missing: %v", inv.Options)
	assert.Equal(t, env.runtimeDir, filepath.Dir(credPath))
	assert.Equal(t, "username=alice\npassword=s3cret\n", env.mechanism.CredentialContents[credPath])

	for _, arg := range inv.Args() {
		assert.NotContains(t, arg, "s3cret", "password leaked into argv")
	}

	_, err := os.Stat(credPath)
	assert.True(t, os.IsNotExist(err), "credentials file should be gone after the mount")
	assert.Empty(t, env.runtimeFiles(t))
	assert.Equal(t, 0, env.executor.Janitor().Live())
	assert.Equal(t, os.FileMode(0755), env.fs.Directories["/mnt/shared"])
}

func TestMountTwiceReportsAlreadyMounted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := cifsParams(t)

	first := env.executor.Mount(ctx, p)
	require.Equal(t, MountSuccess, first.Status)

	second := env.executor.Mount(ctx, p)
	assert.Equal(t, MountAlreadyMounted, second.Status)
	assert.True(t, second.OK())
	assert.True(t, second.AlreadyMounted())
	assert.Equal(t, 1, env.mechanism.MountCalls(), "second call must not spawn a mount")
}

func TestMountDetectsExistingKernelMount(t *testing.T) {
	env := newTestEnv(t, mountutils.MountPoint{Device: "//other/share", Path: "/mnt/shared", Type: "cifs"})

	result := env.executor.Mount(context.Background(), cifsParams(t))
	assert.Equal(t, MountAlreadyMounted, result.Status)
	assert.Equal(t, 0, env.mechanism.MountCalls())
	assert.Empty(t, env.runtimeFiles(t))
}

func TestMountFailuresAreClassifiedAndCleanedUp(t *testing.T) {
	tests := []struct {
		name   string
		output string
		code   int
		want   MountStatus
	}{
		{"wrong password", "mount error(13): Permission denied\nRefer to the mount.cifs(8) manual page", 32, MountAuthFailure},
		{"host down", "mount error(112): Host is down", 32, MountUnreachable},
		{"no route", "mount error(113): could not connect to 192.168.1.10Unable to find suitable address.", 32, MountUnreachable},
		{"missing share", "mount error(2): No such file or directory", 32, MountUnreachable},
		{"not root", "mount: /mnt/shared: must be superuser to use mount.", 1, MountPermissionDenied},
		{"sudo rule missing", "sudo: a password is required", 1, MountPermissionDenied},
		{"raced mount", "mount error(16): Device or resource busy", 32, MountAlreadyMounted},
		{"opaque", "mount error(95): Operation not supported", 32, MountUnknownFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.mechanism.MountFunc = func(Invocation) Outcome {
				return Outcome{ExitCode: tt.code, Output: tt.output, Err: &system.MockExitError{Code: tt.code}}
			}

			result := env.executor.Mount(context.Background(), cifsParams(t))
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, tt.output, result.Diagnostic)
			assert.Empty(t, env.runtimeFiles(t), "credentials file left behind")
			assert.Equal(t, 1, env.mechanism.MountCalls())
		})
	}
}

func TestMountHelperNotStarted(t *testing.T) {
	env := newTestEnv(t)
	env.mechanism.MountFunc = func(Invocation) Outcome {
		return Outcome{ExitCode: -1, Err: errors.New(`exec: "mount": executable file not found in $PATH`)}
	}

	result := env.executor.Mount(context.Background(), cifsParams(t))
	assert.Equal(t, MountUnknownFailure, result.Status)
	assert.Error(t, result.Err)
	assert.Empty(t, env.runtimeFiles(t))
}

func TestMountDiagnosticNeverContainsPassword(t *testing.T) {
	env := newTestEnv(t)
	env.mechanism.MountFunc = func(inv Invocation) Outcome {
		return Outcome{ExitCode: 32, Output: "debug: password=s3cret rejected", Err: &system.MockExitError{Code: 32}}
	}

	result := env.executor.Mount(context.Background(), cifsParams(t))
	assert.NotContains(t, result.Diagnostic, "s3cret")
}

func TestMountLoadsStoredCredential(t *testing.T) {
	env := newTestEnv(t)
	p := cifsParams(t, func(r *share.RawFields) { r.Password = "" })

	stored := p.Credential()
	stored.Password = "from-keyring"
	require.NoError(t, env.store.Save(stored))

	result := env.executor.Mount(context.Background(), p)
	require.Equal(t, MountSuccess, result.Status, result.Diagnostic)

	var contents []string
	for _, c := range env.mechanism.CredentialContents {
		contents = append(contents, c)
	}
	require.Len(t, contents, 1)
	assert.Equal(t, "username=alice\npassword=from-keyring\n", contents[0])
}

func TestMountWithoutAnyCredential(t *testing.T) {
	env := newTestEnv(t)
	p := cifsParams(t, func(r *share.RawFields) { r.Password = "" })

	result := env.executor.Mount(context.Background(), p)
	assert.Equal(t, MountAuthFailure, result.Status)
	assert.ErrorIs(t, result.Err, ErrNoCredentials)
	assert.Equal(t, 0, env.mechanism.MountCalls())
}

func TestMountSecretBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Err = errors.New("secret service unavailable")
	p := cifsParams(t, func(r *share.RawFields) { r.Password = "" })

	result := env.executor.Mount(context.Background(), p)
	assert.Equal(t, MountUnknownFailure, result.Status)
	var berr *credentials.BackendError
	assert.ErrorAs(t, result.Err, &berr)
	assert.Equal(t, 0, env.mechanism.MountCalls())
}

func TestMountNFSPassesOptionsVerbatim(t *testing.T) {
	env := newTestEnv(t)

	result := env.executor.Mount(context.Background(), nfsParams(t))
	require.Equal(t, MountSuccess, result.Status)

	inv, ok := env.mechanism.LastInvocation()
	require.True(t, ok)
	assert.Equal(t, []string{"-t", "nfs", "-o", "vers=4.2,_netdev", "nas:/export/media", "/mnt/media"}, inv.Args())
	assert.Empty(t, env.mechanism.CredentialContents)
}

func TestMountGuestShareHasNoCredentialsFile(t *testing.T) {
	env := newTestEnv(t)
	p := cifsParams(t, func(r *share.RawFields) {
		r.Username = ""
		r.Password = ""
		r.Options = []string{"guest"}
	})

	result := env.executor.Mount(context.Background(), p)
	require.Equal(t, MountSuccess, result.Status)

	inv, _ := env.mechanism.LastInvocation()
	assert.Equal(t, []string{"guest"}, inv.Options)
}

func TestMountPointCreationFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want MountStatus
	}{
		{"permission", &os.PathError{Op: "mkdir", Path: "/mnt/shared", Err: fs.ErrPermission}, MountPermissionDenied},
		{"not a directory", errors.New("/mnt/shared exists but is not a directory"), MountInvalidMountPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.fs.Err = tt.err

			result := env.executor.Mount(context.Background(), cifsParams(t))
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, 0, env.mechanism.MountCalls())
		})
	}
}

func TestMountCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := env.executor.Mount(ctx, cifsParams(t))
	assert.Equal(t, MountUnknownFailure, result.Status)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 0, env.mechanism.MountCalls())
}

func TestUnmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.executor.Unmount(ctx, "/mnt/shared", UnmountOptions{})
	assert.Equal(t, UnmountNotMounted, result.Status)
	assert.True(t, result.OK())
	assert.Equal(t, 0, env.mechanism.UnmountCalls(), "not-mounted must not spawn umount")

	require.Equal(t, MountSuccess, env.executor.Mount(ctx, cifsParams(t)).Status)

	result = env.executor.Unmount(ctx, "/mnt/shared/", UnmountOptions{})
	assert.Equal(t, UnmountSuccess, result.Status)
	assert.Equal(t, "/mnt/shared", result.MountPoint)
	assert.Equal(t, 1, env.mechanism.UnmountCalls())

	// The share can be mounted again afterwards
	assert.Equal(t, MountSuccess, env.executor.Mount(ctx, cifsParams(t)).Status)
}

func TestUnmountBusyIsNotRetried(t *testing.T) {
	env := newTestEnv(t, mountutils.MountPoint{Device: "//nas/shared", Path: "/mnt/shared", Type: "cifs"})
	env.mechanism.UnmountFunc = func(string, UnmountOptions) Outcome {
		return Outcome{ExitCode: 32, Output: "umount: /mnt/shared: target is busy.", Err: &system.MockExitError{Code: 32}}
	}

	result := env.executor.Unmount(context.Background(), "/mnt/shared", UnmountOptions{})
	assert.Equal(t, UnmountBusy, result.Status)
	assert.False(t, result.OK())
	assert.Equal(t, 1, env.mechanism.UnmountCalls())
}

func TestUnmountPassesFlags(t *testing.T) {
	env := newTestEnv(t, mountutils.MountPoint{Device: "nas:/export", Path: "/mnt/media", Type: "nfs"})
	var got UnmountOptions
	env.mechanism.UnmountFunc = func(_ string, opts UnmountOptions) Outcome {
		got = opts
		return Outcome{}
	}

	result := env.executor.Unmount(context.Background(), "/mnt/media", UnmountOptions{Lazy: true, Force: true})
	assert.Equal(t, UnmountSuccess, result.Status)
	assert.Equal(t, UnmountOptions{Lazy: true, Force: true}, got)
}

func TestUnmountRejectsRelativePath(t *testing.T) {
	env := newTestEnv(t)
	result := env.executor.Unmount(context.Background(), "mnt/shared", UnmountOptions{})
	assert.Equal(t, UnmountUnknownFailure, result.Status)
	assert.Error(t, result.Err)
	assert.Equal(t, 0, env.mechanism.UnmountCalls())
}

// unmountedTable reports every path as free so each call reaches the mechanism
type unmountedTable struct{}

func (unmountedTable) IsMounted(string) (bool, error) { return false, nil }

func TestMountSerializesSameMountPoint(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	mech := NewFakeMechanism(nil)
	mech.MountFunc = func(Invocation) Outcome {
		n := inFlight.Add(1)
		for {
			old := maxInFlight.Load()
			if n <= old || maxInFlight.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Outcome{}
	}

	e := NewExecutor(ExecutorConfig{
		Mechanism:  mech,
		Table:      unmountedTable{},
		FileSystem: system.NewMockFileSystem(),
		RuntimeDir: t.TempDir(),
		Resolve:    func(p string) (string, error) { return filepath.Clean(p), nil },
	})
	p := nfsParams(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Mount(context.Background(), p)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 8, mech.MountCalls())
	assert.Equal(t, 0, e.locks.Len())
}

func TestMountDifferentMountPointsRunConcurrently(t *testing.T) {
	var entered sync.WaitGroup
	entered.Add(2)
	allEntered := make(chan struct{})
	go func() {
		entered.Wait()
		close(allEntered)
	}()

	var timedOut atomic.Bool
	mech := NewFakeMechanism(nil)
	mech.MountFunc = func(Invocation) Outcome {
		entered.Done()
		select {
		case <-allEntered:
		case <-time.After(2 * time.Second):
			timedOut.Store(true)
		}
		return Outcome{}
	}

	e := NewExecutor(ExecutorConfig{
		Mechanism:  mech,
		Table:      unmountedTable{},
		FileSystem: system.NewMockFileSystem(),
		RuntimeDir: t.TempDir(),
		Resolve:    func(p string) (string, error) { return filepath.Clean(p), nil },
	})

	a := nfsParams(t)
	b, err := share.Validate(share.RawFields{Server: "nas", Share: "/export/photos", MountPoint: "/mnt/photos", Type: "nfs"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, p := range []share.MountParameters{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Mount(context.Background(), p)
		}()
	}
	wg.Wait()

	assert.False(t, timedOut.Load(), "mounts on different mount points were serialized")
}

type recordingObserver struct {
	mu       sync.Mutex
	mounts   []string
	unmounts []string
}

func (r *recordingObserver) ObserveMount(fsType, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts = append(r.mounts, fsType+":"+status)
}

func (r *recordingObserver) ObserveUnmount(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmounts = append(r.unmounts, status)
}

func TestExecutorReportsToObserver(t *testing.T) {
	mounter := mountutils.NewFakeMounter(nil)
	obs := &recordingObserver{}
	e := NewExecutor(ExecutorConfig{
		Mechanism:  NewFakeMechanism(mounter),
		Table:      system.NewMountTableWithMounter(mounter),
		FileSystem: system.NewMockFileSystem(),
		RuntimeDir: t.TempDir(),
		Observer:   obs,
		Resolve:    func(p string) (string, error) { return filepath.Clean(p), nil },
	})
	ctx := context.Background()

	e.Mount(ctx, nfsParams(t))
	e.Mount(ctx, nfsParams(t))
	e.Unmount(ctx, "/mnt/media", UnmountOptions{})

	assert.Equal(t, []string{"nfs:success", "nfs:already_mounted"}, obs.mounts)
	assert.Equal(t, []string{"success"}, obs.unmounts)
}
