package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// NETMOUNT_FSTAB_PATH or NETMOUNT_LOG_LEVEL
const EnvPrefix = "NETMOUNT"

// Settings controls how netmount talks to the system.
//
// Sources, highest precedence first: command line flags, NETMOUNT_*
// environment variables, the YAML config file, built-in defaults.
type Settings struct {
	// FstabPath is the static mount table to edit
	FstabPath string `mapstructure:"fstab_path" yaml:"fstab_path" validate:"required,startswith=/"`

	// CredentialsDir holds credentials files referenced from fstab
	CredentialsDir string `mapstructure:"credentials_dir" yaml:"credentials_dir" validate:"required,startswith=/"`

	// RuntimeDir holds the short-lived credentials file of a running mount
	RuntimeDir string `mapstructure:"runtime_dir" yaml:"runtime_dir" validate:"required,startswith=/"`

	MountBinary  string `mapstructure:"mount_binary" yaml:"mount_binary" validate:"required"`
	UmountBinary string `mapstructure:"umount_binary" yaml:"umount_binary" validate:"required"`

	// UseSudo prefixes privileged commands with "sudo -n" when not running as root
	UseSudo bool `mapstructure:"use_sudo" yaml:"use_sudo"`

	SecretBackend  string `mapstructure:"secret_backend" yaml:"secret_backend" validate:"required,oneof=keyring memory"`
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service" validate:"required"`

	// BackupFstab copies the table to <fstab>.bak before each rewrite
	BackupFstab bool `mapstructure:"backup_fstab" yaml:"backup_fstab"`

	// DaemonReload runs "systemctl daemon-reload" after fstab changes
	DaemonReload bool `mapstructure:"daemon_reload" yaml:"daemon_reload"`

	ProbeTimeout     time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout" validate:"gt=0"`
	MountConcurrency int           `mapstructure:"mount_concurrency" yaml:"mount_concurrency" validate:"gte=1,lte=64"`

	// MetricsTextfile, when set, receives the outcome counters in the
	// node_exporter textfile format after each command
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile" validate:"omitempty,startswith=/"`

	// PendingDir holds fstab registrations waiting to be retried
	PendingDir string `mapstructure:"pending_dir" yaml:"pending_dir"`

	// StateFile holds the remembered prompt values
	StateFile string `mapstructure:"state_file" yaml:"state_file"`

	Log LogSettings `mapstructure:"log" yaml:"log"`
}

// LogSettings controls the diagnostic logger
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=console json"`
}

var validate = validator.New()

// flagKeys maps command line flags to settings keys
var flagKeys = map[string]string{
	"fstab":            "fstab_path",
	"credentials-dir":  "credentials_dir",
	"secret-backend":   "secret_backend",
	"metrics-textfile": "metrics_textfile",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fstab_path", "/etc/fstab")
	v.SetDefault("credentials_dir", "/etc/netmount/credentials")
	v.SetDefault("runtime_dir", defaultRuntimeDir())
	v.SetDefault("mount_binary", "mount")
	v.SetDefault("umount_binary", "umount")
	v.SetDefault("use_sudo", true)
	v.SetDefault("secret_backend", "keyring")
	v.SetDefault("keyring_service", "netmount")
	v.SetDefault("backup_fstab", true)
	v.SetDefault("daemon_reload", true)
	v.SetDefault("probe_timeout", 5*time.Second)
	v.SetDefault("mount_concurrency", 4)
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("pending_dir", "")
	v.SetDefault("state_file", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
}

// LoadSettings reads settings from configPath (or the default location when
// empty), the environment and flags. flags may be nil. An explicitly named
// config file must exist; the default one is optional.
func LoadSettings(configPath string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if flags != nil {
		if noSudo, err := flags.GetBool("no-sudo"); err == nil && noSudo {
			s.UseSudo = false
		}
	}
	s.Log.Level = strings.ToLower(s.Log.Level)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &s, nil
}

// DefaultSettings returns the built-in settings without reading any source
func DefaultSettings() *Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	_ = v.Unmarshal(&s)
	return &s
}

// Validate checks the struct tags plus rules that tags can't express
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}

	if filepath.Clean(s.CredentialsDir) == filepath.Clean(s.RuntimeDir) {
		return fmt.Errorf("credentials_dir and runtime_dir must differ: %s", s.CredentialsDir)
	}
	return nil
}

// ConfigDir returns $XDG_CONFIG_HOME/netmount, ~/.config/netmount, or "."
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "netmount")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "netmount")
}

// defaultRuntimeDir is /run/netmount for root, otherwise the user's runtime
// directory or a per-user directory under the temp dir
func defaultRuntimeDir() string {
	if os.Geteuid() == 0 {
		return "/run/netmount"
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "netmount")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("netmount-%d", os.Geteuid()))
}

// DefaultConfigPath returns the config file used when --config is not given
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
