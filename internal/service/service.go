// Package service is the API callers use: validate a share, mount or
// unmount it, and keep its fstab registration and credentials files in
// step with what is mounted.
package service

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/zoro11031/netmount/internal/config"
	"github.com/zoro11031/netmount/internal/credentials"
	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/logging"
	"github.com/zoro11031/netmount/internal/mount"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/system"
)

// DefaultConcurrency bounds MountBatch when Config.Concurrency is unset
const DefaultConcurrency = 4

// fstabOptions are appended to every registered network share
var fstabOptions = []string{"_netdev", "nofail"}

// ActiveTable lists what the kernel has mounted
type ActiveTable interface {
	NetworkMounts() ([]system.MountEntry, error)
	IsMounted(path string) (bool, error)
}

// Reloader tells the init system that fstab changed
type Reloader interface {
	DaemonReload() error
}

// Recorder counts fstab and purge outcomes
type Recorder interface {
	ObserveFstab(result string)
	ObservePurge(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFstab(string) {}
func (nopRecorder) ObservePurge(int)    {}

// Config wires a Service. Executor and Fstab are required.
type Config struct {
	Executor *mount.Executor
	Fstab    *fstab.Manager
	// Store holds saved passwords; may be nil
	Store *credentials.Store
	// Credentials receives the files fstab entries reference
	Credentials *credentials.Directory
	Table       ActiveTable
	Network     *system.Network
	// Pending records registrations that failed after a mount; may be nil
	Pending *config.Markers
	// Reloader runs after each fstab change; may be nil
	Reloader    Reloader
	Recorder    Recorder
	Concurrency int
	// Resolve maps a mount point to the form written to fstab; defaults to
	// system.ResolveRealPath
	Resolve func(string) (string, error)
}

// Service combines the executor, the fstab manager and the credential store
type Service struct {
	executor    *mount.Executor
	fstab       *fstab.Manager
	store       *credentials.Store
	creds       *credentials.Directory
	table       ActiveTable
	network     *system.Network
	pending     *config.Markers
	reloader    Reloader
	recorder    Recorder
	concurrency int
	resolve     func(string) (string, error)
}

// New creates a Service from cfg
func New(cfg Config) *Service {
	s := &Service{
		executor:    cfg.Executor,
		fstab:       cfg.Fstab,
		store:       cfg.Store,
		creds:       cfg.Credentials,
		table:       cfg.Table,
		network:     cfg.Network,
		pending:     cfg.Pending,
		reloader:    cfg.Reloader,
		recorder:    cfg.Recorder,
		concurrency: cfg.Concurrency,
		resolve:     cfg.Resolve,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.network == nil {
		s.network = system.NewNetwork(0)
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.resolve == nil {
		s.resolve = system.ResolveRealPath
	}
	return s
}

// Janitor returns the tracker of live transient credentials files
func (s *Service) Janitor() *credentials.Janitor {
	return s.executor.Janitor()
}

// Validate checks raw user input
func (s *Service) Validate(raw share.RawFields) (share.MountParameters, error) {
	return share.Validate(raw)
}

// Mount attaches p without touching fstab
func (s *Service) Mount(ctx context.Context, p share.MountParameters) mount.MountResult {
	return s.executor.Mount(ctx, p)
}

// Unmount detaches mountPoint without touching fstab
func (s *Service) Unmount(ctx context.Context, mountPoint string, opts mount.UnmountOptions) mount.UnmountResult {
	return s.executor.Unmount(ctx, mountPoint, opts)
}

// UpsertFstabEntry inserts or replaces e in the static mount table
func (s *Service) UpsertFstabEntry(e fstab.Entry) (fstab.UpsertResult, error) {
	result, err := s.fstab.Upsert(e)
	if err != nil {
		s.recorder.ObserveFstab("error")
		return result, fmt.Errorf("failed to save fstab entry for %s: %w", e.MountPoint, err)
	}
	s.recorder.ObserveFstab(result.String())
	if result != fstab.Unchanged {
		s.reload()
	}
	return result, nil
}

// RemoveFstabEntry deletes the entry for device and mountPoint
func (s *Service) RemoveFstabEntry(device, mountPoint string) (fstab.RemoveResult, error) {
	result, err := s.fstab.Remove(device, mountPoint)
	if err != nil {
		s.recorder.ObserveFstab("error")
		return result, fmt.Errorf("failed to remove fstab entry for %s: %w", mountPoint, err)
	}
	s.recorder.ObserveFstab(result.String())
	if result == fstab.Removed {
		s.reload()
	}
	return result, nil
}

// ListFstabEntries yields the entries of the static mount table
func (s *Service) ListFstabEntries() iter.Seq2[fstab.Entry, error] {
	return s.fstab.List()
}

// FstabPath returns the static mount table location
func (s *Service) FstabPath() string {
	return s.fstab.Path()
}

// reload runs daemon-reload; a failure only costs a stale generator state
func (s *Service) reload() {
	if s.reloader == nil {
		return
	}
	if err := s.reloader.DaemonReload(); err != nil {
		logging.Base().Warn("daemon-reload after fstab change failed", zap.Error(err))
	}
}

// SaveCredential stores the username and password of p in the secret store
func (s *Service) SaveCredential(p share.MountParameters) error {
	if s.store == nil {
		return fmt.Errorf("no credential store configured")
	}
	if !p.NeedsCredentials() {
		return fmt.Errorf("%s does not use credentials", p.Device())
	}
	if p.Password() == "" {
		return fmt.Errorf("no password given for %s", p.Username())
	}
	return s.store.Save(p.Credential())
}

// ForgetCredential deletes the stored secret of p
func (s *Service) ForgetCredential(p share.MountParameters) error {
	if s.store == nil {
		return fmt.Errorf("no credential store configured")
	}
	return s.store.Delete(p.CredentialID())
}

// EntryFor builds the fstab entry that mounts p at boot. For CIFS shares
// that authenticate, the credentials are written to a persistent file in
// the credentials directory and referenced from the entry.
func (s *Service) EntryFor(p share.MountParameters) (fstab.Entry, error) {
	mountPoint, err := s.resolve(p.MountPoint())
	if err != nil {
		return fstab.Entry{}, fmt.Errorf("failed to resolve mount point %s: %w", p.MountPoint(), err)
	}

	options := p.Options()
	if p.NeedsCredentials() {
		if s.creds == nil {
			return fstab.Entry{}, fmt.Errorf("no credentials directory configured")
		}
		cred, err := mount.CredentialFor(s.store, p)
		if err != nil {
			return fstab.Entry{}, err
		}
		path, err := s.creds.Write(p.Server(), p.Share(), cred)
		if err != nil {
			return fstab.Entry{}, fmt.Errorf("failed to write credentials file: %w", err)
		}
		options = append(options, "credentials="+path)
	}
	for _, opt := range fstabOptions {
		if !slices.Contains(options, opt) {
			options = append(options, opt)
		}
	}

	return fstab.Entry{
		Device:     p.Device(),
		MountPoint: mountPoint,
		Type:       string(p.Type()),
		Options:    options,
	}, nil
}

// AddFstabEntry builds the entry for p and writes it to fstab. When the
// table can't be updated, a credentials file written for the entry is
// removed again unless something else references it.
func (s *Service) AddFstabEntry(p share.MountParameters) (fstab.Entry, fstab.UpsertResult, error) {
	entry, err := s.EntryFor(p)
	if err != nil {
		return entry, fstab.Unchanged, err
	}
	result, err := s.UpsertFstabEntry(entry)
	if err != nil {
		s.discardCredentials(entry)
		return entry, result, err
	}
	return entry, result, nil
}

// discardCredentials removes the credentials file of an entry that never
// made it into fstab
func (s *Service) discardCredentials(e fstab.Entry) {
	path := e.CredentialsFile()
	if path == "" || s.creds == nil || !s.creds.Contains(path) {
		return
	}
	log := logging.Base().With(zap.String("path", path))
	used, err := s.credentialsInUse(path)
	if err != nil {
		log.Warn("kept credentials file, could not check references", zap.Error(err))
		return
	}
	if used {
		return
	}
	if err := s.creds.Remove(path); err != nil {
		log.Warn("failed to remove credentials file", zap.Error(err))
	}
}

// EntriesAt returns the fstab entries for mountPoint. Both the given path
// and its canonical form match, as does an entry whose own mount point
// resolves to the same place.
func (s *Service) EntriesAt(mountPoint string) ([]fstab.Entry, error) {
	wanted := map[string]bool{filepath.Clean(mountPoint): true}
	if resolved, err := s.resolve(mountPoint); err == nil {
		wanted[resolved] = true
	}

	var out []fstab.Entry
	for e, err := range s.fstab.List() {
		if err != nil {
			return nil, err
		}
		match := wanted[filepath.Clean(e.MountPoint)]
		if !match {
			if resolved, err := s.resolve(e.MountPoint); err == nil {
				match = wanted[resolved]
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out, nil
}

// Check probes whether the server of p answers on its filesystem's port
func (s *Service) Check(ctx context.Context, p share.MountParameters) system.Reachability {
	return s.CheckServer(ctx, p.Server(), p.Type())
}

// CheckServer probes host on the port fsType is served on
func (s *Service) CheckServer(ctx context.Context, host string, fsType share.FilesystemType) system.Reachability {
	port := system.PortSMB
	if fsType == share.NFS {
		port = system.PortNFS
	}
	return s.network.Probe(ctx, host, port)
}

// FstabAnomalies returns the lines of the static mount table that could not
// be parsed
func (s *Service) FstabAnomalies() ([]fstab.Anomaly, error) {
	return s.fstab.Anomalies()
}

// ActiveMounts returns the network filesystems currently mounted
func (s *Service) ActiveMounts() ([]system.MountEntry, error) {
	if s.table == nil {
		return nil, fmt.Errorf("no mount table configured")
	}
	return s.table.NetworkMounts()
}
