package mount

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoro11031/netmount/internal/common"
	"github.com/zoro11031/netmount/internal/credentials"
	"github.com/zoro11031/netmount/internal/logging"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/system"
)

// DefaultRuntimeDir holds transient credentials files while a mount runs
const DefaultRuntimeDir = "/run/netmount"

// mountPointMode is the mode for mount point directories the executor creates
const mountPointMode = 0755

// Observer is told about every finished call, for metrics
type Observer interface {
	ObserveMount(fsType, status string, elapsed time.Duration)
	ObserveUnmount(status string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveMount(string, string, time.Duration) {}
func (nopObserver) ObserveUnmount(string, time.Duration)       {}

// ExecutorConfig wires an Executor. Mechanism, Table and FileSystem are required.
type ExecutorConfig struct {
	Mechanism  Mechanism
	Table      MountTable
	FileSystem system.FileSystemManager
	// Store supplies passwords for CIFS mounts that carry none; may be nil
	Store      *credentials.Store
	Janitor    *credentials.Janitor
	RuntimeDir string
	Observer   Observer
	// Resolve maps a mount point to its canonical form; defaults to system.ResolveRealPath
	Resolve func(string) (string, error)
}

// Executor mounts and unmounts shares. Calls for the same canonical mount
// point are serialized; different mount points run concurrently.
type Executor struct {
	mechanism  Mechanism
	table      MountTable
	fs         system.FileSystemManager
	store      *credentials.Store
	janitor    *credentials.Janitor
	runtimeDir string
	observer   Observer
	resolve    func(string) (string, error)
	locks      *KeyedLocks
}

// NewExecutor creates an Executor from cfg
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		mechanism:  cfg.Mechanism,
		table:      cfg.Table,
		fs:         cfg.FileSystem,
		store:      cfg.Store,
		janitor:    cfg.Janitor,
		runtimeDir: cfg.RuntimeDir,
		observer:   cfg.Observer,
		resolve:    cfg.Resolve,
		locks:      NewKeyedLocks(),
	}
	if e.janitor == nil {
		e.janitor = credentials.NewJanitor()
	}
	if e.runtimeDir == "" {
		e.runtimeDir = DefaultRuntimeDir
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if e.resolve == nil {
		e.resolve = system.ResolveRealPath
	}
	return e
}

// Janitor returns the janitor tracking live credentials files
func (e *Executor) Janitor() *credentials.Janitor {
	return e.janitor
}

// Mount attaches the share described by p
func (e *Executor) Mount(ctx context.Context, p share.MountParameters) MountResult {
	start := time.Now()
	ctx, log := logging.StartOperation(ctx, "mount",
		zap.String("device", p.Device()),
		zap.String("mount_point", p.MountPoint()),
		zap.String("type", string(p.Type())),
	)

	result := e.mount(ctx, log, p)
	e.observer.ObserveMount(string(p.Type()), result.Status.String(), time.Since(start))

	fields := []zap.Field{zap.Stringer("status", result.Status), zap.Duration("elapsed", time.Since(start))}
	if result.OK() {
		log.Info("mount finished", fields...)
	} else {
		log.Warn("mount failed", append(fields, zap.String("diagnostic", result.Diagnostic), zap.Error(result.Err))...)
	}
	return result
}

func (e *Executor) mount(ctx context.Context, log *zap.Logger, p share.MountParameters) MountResult {
	result := MountResult{MountPoint: p.MountPoint()}

	target, err := e.resolve(p.MountPoint())
	if err != nil {
		result.Status = MountInvalidMountPoint
		result.Err = err
		return result
	}
	result.MountPoint = target

	if err := ctx.Err(); err != nil {
		result.Status = MountUnknownFailure
		result.Err = err
		return result
	}

	unlock := e.locks.Lock(target)
	defer unlock()

	mounted, err := e.table.IsMounted(target)
	if err != nil {
		log.Warn("failed to read mount table", zap.Error(err))
	} else if mounted {
		result.Status = MountAlreadyMounted
		result.Diagnostic = fmt.Sprintf("%s is already a mount point", target)
		return result
	}

	if err := e.fs.EnsureDirectory(target, mountPointMode); err != nil {
		result.Err = err
		result.Diagnostic = err.Error()
		if errors.Is(err, fs.ErrPermission) {
			result.Status = MountPermissionDenied
		} else {
			result.Status = MountInvalidMountPoint
		}
		return result
	}

	options := p.Options()
	var password string
	if p.NeedsCredentials() {
		cred, err := e.credentialFor(p)
		if err != nil {
			result.Err = err
			result.Diagnostic = err.Error()
			var berr *credentials.BackendError
			if errors.As(err, &berr) {
				result.Status = MountUnknownFailure
			} else {
				result.Status = MountAuthFailure
			}
			return result
		}
		password = cred.Password

		file, err := credentials.Materialize(e.runtimeDir, cred)
		if err != nil {
			result.Status = MountUnknownFailure
			result.Err = fmt.Errorf("failed to prepare credentials file: %w", err)
			result.Diagnostic = result.Err.Error()
			return result
		}
		untrack := e.janitor.Track(file)
		defer func() {
			untrack()
			if err := file.Release(); err != nil {
				log.Error("failed to remove credentials file", zap.String("path", file.Path()), zap.Error(err))
			}
		}()
		options = append(options, "credentials="+file.Path())
	}

	inv := Invocation{
		Type:    string(p.Type()),
		Device:  p.Device(),
		Target:  target,
		Options: options,
	}
	log.Debug("running mount helper", zap.String("device", inv.Device), zap.String("target", inv.Target))

	outcome := e.mechanism.Mount(inv)
	result.Status = classifyMount(p.Type(), outcome)
	result.Diagnostic = redact(strings.TrimSpace(outcome.Output), password)
	if result.Status != MountSuccess {
		result.Err = outcome.Err
	}
	return result
}

// credentialFor returns the credential a CIFS mount authenticates with
func (e *Executor) credentialFor(p share.MountParameters) (credentials.Credential, error) {
	return CredentialFor(e.store, p)
}

// CredentialFor returns the password carried by p, or the one stored under
// p.CredentialID. store may be nil. Missing secrets wrap ErrNoCredentials.
func CredentialFor(store *credentials.Store, p share.MountParameters) (credentials.Credential, error) {
	cred := p.Credential()
	if cred.Password != "" {
		return cred, nil
	}
	if store == nil {
		return credentials.Credential{}, ErrNoCredentials
	}

	stored, err := store.Load(cred.ID)
	if errors.Is(err, credentials.ErrNotFound) {
		return credentials.Credential{}, fmt.Errorf("%w: nothing stored for %s on %s", ErrNoCredentials, p.Username(), p.Device())
	}
	if err != nil {
		return credentials.Credential{}, err
	}
	if stored.Password == "" {
		return credentials.Credential{}, ErrNoCredentials
	}
	if p.Domain() != "" {
		stored.Domain = p.Domain()
	}
	return stored, nil
}

// Unmount detaches whatever is mounted at mountPoint
func (e *Executor) Unmount(ctx context.Context, mountPoint string, opts UnmountOptions) UnmountResult {
	start := time.Now()
	ctx, log := logging.StartOperation(ctx, "unmount",
		zap.String("mount_point", mountPoint),
		zap.Bool("lazy", opts.Lazy),
		zap.Bool("force", opts.Force),
	)

	result := e.unmount(ctx, log, mountPoint, opts)
	e.observer.ObserveUnmount(result.Status.String(), time.Since(start))

	fields := []zap.Field{zap.Stringer("status", result.Status), zap.Duration("elapsed", time.Since(start))}
	if result.OK() {
		log.Info("unmount finished", fields...)
	} else {
		log.Warn("unmount failed", append(fields, zap.String("diagnostic", result.Diagnostic), zap.Error(result.Err))...)
	}
	return result
}

func (e *Executor) unmount(ctx context.Context, log *zap.Logger, mountPoint string, opts UnmountOptions) UnmountResult {
	result := UnmountResult{MountPoint: mountPoint}

	if err := common.ValidatePath(mountPoint); err != nil {
		result.Status = UnmountUnknownFailure
		result.Err = fmt.Errorf("invalid mount point: %w", err)
		result.Diagnostic = result.Err.Error()
		return result
	}

	target, err := e.resolve(mountPoint)
	if err != nil {
		result.Status = UnmountUnknownFailure
		result.Err = err
		return result
	}
	result.MountPoint = target

	if err := ctx.Err(); err != nil {
		result.Status = UnmountUnknownFailure
		result.Err = err
		return result
	}

	unlock := e.locks.Lock(target)
	defer unlock()

	mounted, err := e.table.IsMounted(target)
	if err != nil {
		log.Warn("failed to read mount table", zap.Error(err))
	} else if !mounted {
		result.Status = UnmountNotMounted
		result.Diagnostic = fmt.Sprintf("%s is not mounted", target)
		return result
	}

	outcome := e.mechanism.Unmount(target, opts)
	result.Status = classifyUnmount(outcome)
	result.Diagnostic = strings.TrimSpace(outcome.Output)
	if result.Status != UnmountSuccess {
		result.Err = outcome.Err
	}
	return result
}

// redact removes secret from helper output in case a helper echoes it
func redact(output, secret string) string {
	if secret == "" {
		return output
	}
	return strings.ReplaceAll(output, secret, "[redacted]")
}
