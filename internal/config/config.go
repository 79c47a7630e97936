// Package config loads the signalmail configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for signalmail.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Signal  SignalConfig  `yaml:"signal"`
	Mail    MailConfig    `yaml:"mail"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Reply   ReplyConfig   `yaml:"reply"`
}

type GeneralConfig struct {
	DataDir           string `yaml:"data_dir"`
	Debug             bool   `yaml:"debug"`
	SendMail          bool   `yaml:"send_mail"`
	DeleteAttachments bool   `yaml:"delete_attachments"`
	// MetricsAddr exposes Prometheus metrics on this address when set,
	// e.g. "127.0.0.1:9321". Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

type SignalConfig struct {
	// Account is the daemon account identifier, e.g. "+4915550000000".
	Account       string            `yaml:"account"`
	AttachmentDir string            `yaml:"attachment_dir"`
	UseSessionBus bool              `yaml:"use_session_bus"`
	Contacts      map[string]string `yaml:"contacts"`
	IgnoreSenders []string          `yaml:"ignore_senders"`
}

type MailConfig struct {
	From            string            `yaml:"from"`
	Subject         string            `yaml:"subject"`
	Heading         string            `yaml:"heading"`
	Signature       string            `yaml:"signature"`
	Recipients      string            `yaml:"recipients"` // comma separated
	Headers         map[string]string `yaml:"headers"`    // extra header -> value template
	MaxAttachmentMB int64             `yaml:"max_attachment_mb"`
	TimestampFormat string            `yaml:"timestamp_format"` // strftime pattern
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ReplyConfig struct {
	Text   string `yaml:"text"`   // auto-reply template, empty = disabled
	Attach string `yaml:"attach"` // optional attachment path
}

// RecipientList splits the configured recipient string into individual
// envelope recipients.
func (m MailConfig) RecipientList() []string {
	var out []string
	for _, r := range strings.Split(m.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// IsIgnored reports whether sender is in the exclusion table.
func (s SignalConfig) IsIgnored(sender string) bool {
	for _, id := range s.IgnoreSenders {
		if id == sender {
			return true
		}
	}
	return false
}

// DefaultDataDir returns the default data directory
// (~/.local/share/signalmail).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signalmail"
	}
	return filepath.Join(home, ".local", "share", "signalmail")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads, env-expands, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.Signal.AttachmentDir = ExpandPath(cfg.Signal.AttachmentDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg to path, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that every mandatory key is present and values are sane.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Signal.Account == "" {
		errs = append(errs, "signal.account is required")
	}
	if cfg.Mail.From == "" {
		errs = append(errs, "mail.from is required")
	}
	if cfg.Mail.Subject == "" {
		errs = append(errs, "mail.subject is required")
	}
	if len(cfg.Mail.RecipientList()) == 0 {
		errs = append(errs, "mail.recipients must list at least one address")
	}
	if cfg.SMTP.Host == "" {
		errs = append(errs, "smtp.host is required")
	}
	if cfg.SMTP.User == "" {
		errs = append(errs, "smtp.user is required")
	}
	if cfg.SMTP.Password == "" {
		errs = append(errs, "smtp.password is required")
	}
	if cfg.SMTP.Port < 1 || cfg.SMTP.Port > 65535 {
		errs = append(errs, "smtp.port must be between 1 and 65535")
	}
	if cfg.Mail.MaxAttachmentMB < 0 {
		errs = append(errs, "mail.max_attachment_mb must be >= 0")
	}
	if cfg.Mail.TimestampFormat == "" {
		errs = append(errs, "mail.timestamp_format must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config incomplete:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Sanitize returns a copy of the config with the SMTP password masked, for
// `signalmail config list` output.
func Sanitize(cfg *Config) *Config {
	copied := *cfg
	if copied.SMTP.Password != "" {
		copied.SMTP.Password = maskString(copied.SMTP.Password)
	}
	return &copied
}

// maskString shows first 2 and last 2 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// ExpandPath resolves ~/ and environment variables in a filesystem path.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
