package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/zoro11031/netmount/internal/common"
	"github.com/zoro11031/netmount/internal/config"
	"github.com/zoro11031/netmount/internal/service"
	"github.com/zoro11031/netmount/internal/share"
	"github.com/zoro11031/netmount/internal/system"
	"github.com/zoro11031/netmount/internal/ui"
)

// maxAttempts bounds how often the wizard asks again after invalid input
const maxAttempts = 3

var shareTypes = []string{string(share.CIFS), string(share.NFS)}

// ShareWizard asks for the details of a share, pre-filled with the values
// used last time
type ShareWizard struct {
	ui      *ui.UI
	config  *config.Config
	service *service.Service
}

// NewShareWizard creates a new ShareWizard instance
func NewShareWizard(u *ui.UI, cfg *config.Config, svc *service.Service) *ShareWizard {
	return &ShareWizard{ui: u, config: cfg, service: svc}
}

// PromptShare asks for every field and validates the answers. After an
// invalid answer the questions are asked again, pre-filled with what was
// typed.
func (w *ShareWizard) PromptShare() (share.MountParameters, error) {
	raw := w.rememberedFields()
	for attempt := 1; ; attempt++ {
		var err error
		raw, err = w.promptFields(raw)
		if err != nil {
			return share.MountParameters{}, err
		}

		p, err := w.service.Validate(raw)
		if err == nil {
			return p, nil
		}
		var verr *share.ValidationError
		if !errors.As(err, &verr) || w.ui.IsNonInteractive() || attempt == maxAttempts {
			return share.MountParameters{}, err
		}
		w.ui.Error(err.Error())
		w.ui.Print("")
	}
}

// rememberedFields returns the share used last time as defaults for the
// questions that follow
func (w *ShareWizard) rememberedFields() share.RawFields {
	raw := share.RawFields{
		Type:       w.config.GetOrDefault(config.KeyLastType, string(share.CIFS)),
		Server:     w.config.GetOrDefault(config.KeyLastServer, ""),
		Share:      w.config.GetOrDefault(config.KeyLastShare, ""),
		MountPoint: w.config.GetOrDefault(config.KeyLastMountPoint, ""),
		Username:   w.config.GetOrDefault(config.KeyLastUsername, ""),
		Domain:     w.config.GetOrDefault(config.KeyLastDomain, ""),
		Options:    splitOptions(w.config.GetOrDefault(config.KeyLastOptions, "")),
	}
	if !w.config.Exists(config.KeyLastServer) {
		return raw
	}
	if p, err := share.Validate(raw); err == nil {
		w.ui.Infof("Previously used share: %s", p)
	}
	return raw
}

func (w *ShareWizard) promptFields(prev share.RawFields) (share.RawFields, error) {
	var raw share.RawFields

	typeIdx := slices.Index(shareTypes, strings.ToLower(prev.Type))
	if typeIdx < 0 {
		typeIdx = 0
	}
	idx, err := w.ui.PromptSelect("Share type", []string{"cifs (Samba / Windows)", "nfs"}, typeIdx)
	if err != nil {
		return raw, fmt.Errorf("failed to prompt for share type: %w", err)
	}
	raw.Type = shareTypes[idx]
	isNFS := raw.Type == string(share.NFS)

	raw.Server, err = w.ui.PromptInputWithValidation("Server IP or hostname", prev.Server, common.ValidateNotEmpty)
	if err != nil {
		return raw, fmt.Errorf("failed to prompt for server: %w", err)
	}

	shareLabel := "Share name (e.g., media)"
	if isNFS {
		shareLabel = "Export path (e.g., /srv/media)"
	}
	raw.Share, err = w.ui.PromptInputWithValidation(shareLabel, prev.Share, common.ValidateNotEmpty)
	if err != nil {
		return raw, fmt.Errorf("failed to prompt for share: %w", err)
	}

	mountPoint := prev.MountPoint
	if mountPoint == "" {
		mountPoint = config.Defaults[config.KeyLastMountPoint]
	}
	raw.MountPoint, err = w.ui.PromptInputWithValidation("Local mount point", mountPoint, common.ValidatePath)
	if err != nil {
		return raw, fmt.Errorf("failed to prompt for mount point: %w", err)
	}

	options := prev.Options
	if !isNFS {
		guest, err := w.ui.PromptYesNo("Connect as guest (no password)?", hasGuest(prev.Options))
		if err != nil {
			return raw, fmt.Errorf("failed to prompt: %w", err)
		}
		options = slices.DeleteFunc(slices.Clone(options), isGuestToken)
		if guest {
			options = append(options, "guest")
		} else {
			if err := w.promptAccount(&raw, prev); err != nil {
				return raw, err
			}
		}
	}

	answer, err := w.ui.PromptInput("Extra mount options, comma separated (optional)", strings.Join(options, ","))
	if err != nil {
		return raw, fmt.Errorf("failed to prompt for options: %w", err)
	}
	raw.Options = splitOptions(answer)
	return raw, nil
}

func (w *ShareWizard) promptAccount(raw *share.RawFields, prev share.RawFields) error {
	var err error
	raw.Username, err = w.ui.PromptInputWithValidation("Username", prev.Username, common.ValidateNotEmpty)
	if err != nil {
		return fmt.Errorf("failed to prompt for username: %w", err)
	}
	raw.Domain, err = w.ui.PromptInput("Domain or workgroup (optional)", prev.Domain)
	if err != nil {
		return fmt.Errorf("failed to prompt for domain: %w", err)
	}
	if w.ui.IsNonInteractive() {
		// The password then has to come from the credential store
		return nil
	}
	w.ui.Info("Leave the password empty to use the saved one")
	raw.Password, err = w.ui.PromptPassword("Password")
	if err != nil {
		return fmt.Errorf("failed to prompt for password: %w", err)
	}
	return nil
}

// Remember stores the answers as defaults for next time. The password is
// never stored.
func (w *ShareWizard) Remember(p share.MountParameters, addToFstab, saveCredentials bool) error {
	return w.config.SetMany(map[string]string{
		config.KeyLastType:       string(p.Type()),
		config.KeyLastServer:     p.Server(),
		config.KeyLastShare:      p.Share(),
		config.KeyLastMountPoint: p.MountPoint(),
		config.KeyLastUsername:   p.Username(),
		config.KeyLastDomain:     p.Domain(),
		config.KeyLastOptions:    strings.Join(p.Options(), ","),
		config.KeyLastAddToFstab: strconv.FormatBool(addToFstab),
		config.KeyLastSaveSecret: strconv.FormatBool(saveCredentials),
	})
}

// Forget deletes the remembered answers and returns how many there were.
// The file itself and its version key are kept.
func (w *ShareWizard) Forget() (int, error) {
	forgotten := 0
	for key := range w.config.GetAll() {
		if key == config.KeyConfigVersion {
			continue
		}
		if err := w.config.Delete(key); err != nil {
			return forgotten, fmt.Errorf("failed to forget %s: %w", key, err)
		}
		forgotten++
	}
	return forgotten, nil
}

// PromptAddToFstab asks whether the share should be mounted at boot
func (w *ShareWizard) PromptAddToFstab() (bool, error) {
	def, _ := strconv.ParseBool(w.config.GetOrDefault(config.KeyLastAddToFstab, "false"))
	return w.ui.PromptYesNo(fmt.Sprintf("Add to %s so it is mounted at boot?", w.service.FstabPath()), def)
}

// PromptSaveCredentials asks whether the password should be kept in the
// secret store. Shares without a typed password are not asked about.
func (w *ShareWizard) PromptSaveCredentials(p share.MountParameters) (bool, error) {
	if !p.NeedsCredentials() || p.Password() == "" {
		return false, nil
	}
	def, _ := strconv.ParseBool(w.config.GetOrDefault(config.KeyLastSaveSecret, "false"))
	return w.ui.PromptYesNo("Save the password in the secret store?", def)
}

// CheckServer probes the server of p and reports what it found. When the
// server does not answer, the user decides whether to go on.
func (w *ShareWizard) CheckServer(ctx context.Context, p share.MountParameters) error {
	w.ui.Infof("Testing connection to %s...", p.Server())
	r := w.service.Check(ctx, p)
	if ReportReachability(w.ui, p.Type(), r) {
		return nil
	}

	cont, err := w.ui.PromptYesNo("Try to mount anyway?", false)
	if err != nil {
		return fmt.Errorf("failed to prompt: %w", err)
	}
	if !cont {
		return fmt.Errorf("%s is unreachable", p.Server())
	}
	return nil
}

// PromptMountPoint asks which network share to act on. Mounted shares are
// offered in a list; with none mounted the path is typed in.
func (w *ShareWizard) PromptMountPoint(prompt string) (string, error) {
	active, err := w.service.ActiveMounts()
	if err != nil || len(active) == 0 {
		return w.ui.PromptInputWithValidation(prompt, w.config.GetOrDefault(config.KeyLastMountPoint, ""), common.ValidatePath)
	}

	options := make([]string, len(active))
	for i, m := range active {
		options[i] = describeMount(m)
	}
	idx, err := w.ui.PromptSelect(prompt, options, -1)
	if err != nil {
		return "", err
	}
	return active[idx].Path, nil
}

func describeMount(m system.MountEntry) string {
	return fmt.Sprintf("%s (%s from %s)", m.Path, m.Type, m.Device)
}

// splitOptions parses a comma separated option list
func splitOptions(s string) []string {
	var out []string
	for _, opt := range strings.Split(s, ",") {
		if opt = strings.TrimSpace(opt); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}

func isGuestToken(opt string) bool {
	return strings.EqualFold(opt, "guest")
}

func hasGuest(options []string) bool {
	return slices.ContainsFunc(options, isGuestToken)
}
