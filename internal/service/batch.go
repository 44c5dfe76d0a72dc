package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/zoro11031/netmount/internal/credentials"
	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/mount"
	"github.com/zoro11031/netmount/internal/share"
)

// BatchItem is one share of a batch file. Register asks for an fstab
// registration after the mount.
type BatchItem struct {
	share.RawFields `yaml:",inline"`
	Register        bool `yaml:"register,omitempty"`
}

// BatchResult pairs an item with what happened to it. Err is set when the
// item did not validate, in which case nothing was attempted.
type BatchResult struct {
	Item    BatchItem
	Params  share.MountParameters
	Outcome RegisterOutcome
	Err     error
}

// LoadBatchFile reads a YAML list of shares
func LoadBatchFile(path string) ([]BatchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var doc struct {
		Shares []BatchItem `yaml:"shares"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}
	return doc.Shares, nil
}

// MountBatch mounts every item, at most Config.Concurrency at a time.
// Items for the same mount point are serialized by the executor. Results
// keep the order of items.
func (s *Service) MountBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, item := range items {
		results[i].Item = item
		p, err := share.Validate(item.RawFields)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Params = p
		g.Go(func() error {
			if item.Register {
				results[i].Outcome = s.MountAndRegister(ctx, p)
			} else {
				results[i].Outcome = RegisterOutcome{Mount: s.executor.Mount(ctx, p)}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MountAsync runs Mount on a goroutine. The channel receives exactly one
// result and is then closed.
func (s *Service) MountAsync(ctx context.Context, p share.MountParameters) <-chan mount.MountResult {
	ch := make(chan mount.MountResult, 1)
	go func() {
		defer close(ch)
		ch <- s.executor.Mount(ctx, p)
	}()
	return ch
}

// UnmountAsync runs Unmount on a goroutine
func (s *Service) UnmountAsync(ctx context.Context, mountPoint string, opts mount.UnmountOptions) <-chan mount.UnmountResult {
	ch := make(chan mount.UnmountResult, 1)
	go func() {
		defer close(ch)
		ch <- s.executor.Unmount(ctx, mountPoint, opts)
	}()
	return ch
}

// UnusedCredentials lists credentials files no fstab entry references
func (s *Service) UnusedCredentials() ([]credentials.StoredFile, error) {
	if s.creds == nil {
		return nil, fmt.Errorf("no credentials directory configured")
	}
	refs, err := s.referencedCredentialFiles()
	if err != nil {
		return nil, err
	}
	return s.creds.Unused(refs)
}

// PurgeUnusedCredentials deletes the credentials files no fstab entry
// references and returns them. With dryRun nothing is deleted.
func (s *Service) PurgeUnusedCredentials(dryRun bool) ([]credentials.StoredFile, error) {
	unused, err := s.UnusedCredentials()
	if err != nil || dryRun {
		return unused, err
	}

	removed := make([]credentials.StoredFile, 0, len(unused))
	for _, f := range unused {
		if err := s.creds.Remove(f.Path); err != nil {
			s.recorder.ObservePurge(len(removed))
			return removed, fmt.Errorf("failed to purge %s: %w", f.Path, err)
		}
		removed = append(removed, f)
	}
	s.recorder.ObservePurge(len(removed))
	return removed, nil
}

// ShareStatus is one registered network share and whether it is mounted.
// Path is the canonical mount point the kernel table is searched for; Err
// is set when the state of this share could not be determined.
type ShareStatus struct {
	Entry   fstab.Entry
	Path    string
	Mounted bool
	Err     error
}

// Status reports every network share in fstab with its mount state. A share
// whose state can't be read is reported with Err instead of failing the list.
func (s *Service) Status() ([]ShareStatus, error) {
	shares, err := s.fstab.NetworkShares()
	if err != nil {
		return nil, err
	}

	out := make([]ShareStatus, 0, len(shares))
	for _, e := range shares {
		st := ShareStatus{Entry: e, Path: filepath.Clean(e.MountPoint)}
		if resolved, err := s.resolve(e.MountPoint); err == nil {
			st.Path = resolved
		}
		if s.table != nil {
			mounted, err := s.table.IsMounted(st.Path)
			if err != nil {
				st.Err = fmt.Errorf("failed to check %s: %w", e.MountPoint, err)
			}
			st.Mounted = mounted
		}
		out = append(out, st)
	}
	return out, nil
}
