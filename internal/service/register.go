package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zoro11031/netmount/internal/config"
	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/logging"
	"github.com/zoro11031/netmount/internal/mount"
	"github.com/zoro11031/netmount/internal/share"
)

// RegisterOutcome reports a mount followed by its fstab registration. The
// mount is never rolled back when registration fails.
type RegisterOutcome struct {
	Mount           mount.MountResult
	Registered      bool
	Entry           fstab.Entry
	Result          fstab.UpsertResult
	RegistrationErr error
}

// UnregisterOutcome reports an unmount followed by removal of its fstab entry
type UnregisterOutcome struct {
	Unmount         mount.UnmountResult
	Removed         bool
	CredentialsFile string
	RemovalErr      error
}

// PendingRegistration is a registration that failed after a successful
// mount. It never holds a password.
type PendingRegistration struct {
	MountPoint string          `yaml:"mount_point"`
	Share      share.RawFields `yaml:"share"`
	Entry      *fstab.Entry    `yaml:"entry,omitempty"`
	Error      string          `yaml:"error"`
	FailedAt   time.Time       `yaml:"failed_at"`
}

// MountAndRegister mounts p and, when that succeeds or the share was
// already mounted, registers it in fstab
func (s *Service) MountAndRegister(ctx context.Context, p share.MountParameters) RegisterOutcome {
	out := RegisterOutcome{Mount: s.executor.Mount(ctx, p)}
	if !out.Mount.OK() {
		return out
	}

	ctx, log := logging.StartOperation(ctx, "register",
		zap.String("device", p.Device()),
		zap.String("mount_point", p.MountPoint()),
	)

	entry, err := s.EntryFor(p)
	if err == nil {
		out.Entry = entry
		out.Result, err = s.UpsertFstabEntry(entry)
	}
	if err != nil {
		out.RegistrationErr = err
		log.Warn("fstab registration failed after mount", zap.Error(err))
		var built *fstab.Entry
		if entry.Device != "" {
			built = &entry
		}
		if markErr := s.markPending(p, built, err); markErr != nil {
			log.Warn("failed to record pending registration", zap.Error(markErr))
		}
		return out
	}

	out.Registered = true
	s.clearPending(ctx, p.MountPoint())
	return out
}

// UnmountAndUnregister unmounts mountPoint and, when it is no longer
// mounted, removes its fstab entry. The entry's credentials file is deleted
// too when it lives in the credentials directory and no other entry uses it.
func (s *Service) UnmountAndUnregister(ctx context.Context, mountPoint string, opts mount.UnmountOptions) UnregisterOutcome {
	out := UnregisterOutcome{Unmount: s.executor.Unmount(ctx, mountPoint, opts)}
	if !out.Unmount.OK() {
		return out
	}

	_, log := logging.StartOperation(ctx, "unregister", zap.String("mount_point", mountPoint))

	target := out.Unmount.MountPoint
	if target == "" {
		target = filepath.Clean(mountPoint)
	}
	entry, found, err := s.findEntry(mountPoint, target)
	if err != nil {
		out.RemovalErr = err
		return out
	}
	if !found {
		s.clearPending(ctx, mountPoint)
		return out
	}

	if _, err := s.RemoveFstabEntry(entry.Device, entry.MountPoint); err != nil {
		out.RemovalErr = err
		return out
	}
	out.Removed = true
	s.clearPending(ctx, mountPoint)

	credFile := entry.CredentialsFile()
	if credFile == "" || s.creds == nil || !s.creds.Contains(credFile) {
		return out
	}
	used, err := s.credentialsInUse(credFile)
	if err != nil {
		log.Warn("could not check remaining credentials references", zap.Error(err))
		return out
	}
	if used {
		return out
	}
	if err := s.creds.Remove(credFile); err != nil {
		log.Warn("failed to remove credentials file", zap.String("path", credFile), zap.Error(err))
		return out
	}
	out.CredentialsFile = credFile
	return out
}

// findEntry looks the entry up by the given and the canonical mount point
func (s *Service) findEntry(paths ...string) (fstab.Entry, bool, error) {
	for _, p := range paths {
		entry, found, err := s.fstab.Find(p)
		if err != nil || found {
			return entry, found, err
		}
	}
	return fstab.Entry{}, false, nil
}

func (s *Service) markPending(p share.MountParameters, entry *fstab.Entry, cause error) error {
	if s.pending == nil {
		return nil
	}
	raw := p.Raw()
	raw.Password = ""
	data, err := yaml.Marshal(PendingRegistration{
		MountPoint: p.MountPoint(),
		Share:      raw,
		Entry:      entry,
		Error:      cause.Error(),
		FailedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode pending registration: %w", err)
	}
	return s.pending.Create(config.MarkerName(p.MountPoint()), data)
}

func (s *Service) clearPending(ctx context.Context, mountPoint string) {
	if s.pending == nil {
		return
	}
	name := config.MarkerName(filepath.Clean(mountPoint))
	exists, err := s.pending.Exists(name)
	if err == nil && !exists {
		return
	}
	if err := s.pending.Remove(name); err != nil {
		logging.FromContext(ctx).Warn("failed to clear pending registration", zap.Error(err))
		return
	}
	logging.FromContext(ctx).Info("cleared pending registration", zap.String("mount_point", mountPoint))
}

// Pending returns the registrations waiting to be retried
func (s *Service) Pending() ([]PendingRegistration, error) {
	if s.pending == nil {
		return nil, nil
	}
	names, err := s.pending.List()
	if err != nil {
		return nil, err
	}

	var out []PendingRegistration
	for _, name := range names {
		data, err := s.pending.Read(name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var pr PendingRegistration
		if err := yaml.Unmarshal(data, &pr); err != nil {
			return nil, fmt.Errorf("failed to decode pending registration %s: %w", name, err)
		}
		if pr.MountPoint == "" {
			// The marker name is the escaped mount point
			if pr.MountPoint, err = config.KeyForMarker(name); err != nil {
				return nil, err
			}
		}
		out = append(out, pr)
	}
	return out, nil
}

// RetryPending registers every pending share again and returns the ones
// that still fail, keyed by mount point
func (s *Service) RetryPending(ctx context.Context) (map[string]error, error) {
	pending, err := s.Pending()
	if err != nil {
		return nil, err
	}

	failed := make(map[string]error)
	for _, pr := range pending {
		if err := s.retry(pr); err != nil {
			failed[pr.MountPoint] = err
			continue
		}
		s.clearPending(ctx, pr.MountPoint)
	}
	return failed, nil
}

func (s *Service) retry(pr PendingRegistration) error {
	if pr.Entry != nil {
		_, err := s.UpsertFstabEntry(*pr.Entry)
		return err
	}
	p, err := share.Validate(pr.Share)
	if err != nil {
		return err
	}
	entry, err := s.EntryFor(p)
	if err != nil {
		return err
	}
	_, err = s.UpsertFstabEntry(entry)
	return err
}

// referencedCredentialFiles returns the credentials files named by fstab
// entries and by pending registrations, which are written back on retry
func (s *Service) referencedCredentialFiles() ([]string, error) {
	refs, err := s.fstab.ReferencedCredentialFiles()
	if err != nil {
		return nil, err
	}
	pending, err := s.Pending()
	if err != nil {
		return nil, err
	}
	for _, pr := range pending {
		if pr.Entry != nil {
			if f := pr.Entry.CredentialsFile(); f != "" {
				refs = append(refs, f)
			}
		}
	}
	return refs, nil
}

// credentialsInUse reports whether path is still referenced
func (s *Service) credentialsInUse(path string) (bool, error) {
	refs, err := s.referencedCredentialFiles()
	if err != nil {
		return false, err
	}
	for _, ref := range refs {
		if filepath.Clean(ref) == filepath.Clean(path) {
			return true, nil
		}
	}
	return false, nil
}
