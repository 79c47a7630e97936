package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
signal:
  account: "+4915550000000"
mail:
  from: "signalmail <bot@example.org>"
  subject: "New Signal message"
  recipients: "you@example.org"
smtp:
  host: "mail.example.org"
  user: "bot"
  password: "hunter22"
`

func TestLoad_MinimalWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SMTP.Port != DefaultSMTPPort {
		t.Errorf("SMTP.Port = %d, want %d", cfg.SMTP.Port, DefaultSMTPPort)
	}
	if cfg.Mail.MaxAttachmentMB != DefaultMaxAttachmentMB {
		t.Errorf("MaxAttachmentMB = %d, want %d", cfg.Mail.MaxAttachmentMB, DefaultMaxAttachmentMB)
	}
	if cfg.Mail.TimestampFormat != DefaultTimestampFormat {
		t.Errorf("TimestampFormat = %q, want %q", cfg.Mail.TimestampFormat, DefaultTimestampFormat)
	}
	if !cfg.General.SendMail || !cfg.General.DeleteAttachments || cfg.General.Debug {
		t.Errorf("switch defaults wrong: %+v", cfg.General)
	}
	if !cfg.Signal.UseSessionBus {
		t.Error("use_session_bus should default to true")
	}
}

func TestLoad_MissingMandatoryKeys(t *testing.T) {
	_, err := Load(writeConfig(t, `
signal:
  account: "+4915550000000"
mail:
  subject: "s"
`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"mail.from", "mail.recipients", "smtp.host", "smtp.user", "smtp.password"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SIGNALMAIL_TEST_PASS", "secret")
	cfg, err := Load(writeConfig(t, strings.ReplaceAll(minimalConfig,
		`password: "hunter22"`, `password: "${SIGNALMAIL_TEST_PASS}"`)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTP.Password != "secret" {
		t.Errorf("Password = %q, want secret", cfg.SMTP.Password)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("SIGNALMAIL_UNSET_VAR")
	got := ExpandEnvVars("port: ${SIGNALMAIL_UNSET_VAR:-587}")
	if got != "port: 587" {
		t.Errorf("got %q", got)
	}
}

func TestRecipientList(t *testing.T) {
	m := MailConfig{Recipients: "a@x.org, b@x.org ,, c@x.org"}
	got := m.RecipientList()
	want := []string{"a@x.org", "b@x.org", "c@x.org"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsIgnored(t *testing.T) {
	s := SignalConfig{IgnoreSenders: []string{"+491111", "+492222"}}
	if !s.IsIgnored("+491111") {
		t.Error("expected +491111 ignored")
	}
	if s.IsIgnored("+493333") {
		t.Error("did not expect +493333 ignored")
	}
}

func TestSanitize_MasksPassword(t *testing.T) {
	cfg := Defaults()
	cfg.SMTP.Password = "supersecretpw"
	got := Sanitize(cfg).SMTP.Password
	if got == cfg.SMTP.Password || !strings.Contains(got, "****") {
		t.Errorf("password not masked: %q", got)
	}
	if cfg.SMTP.Password != "supersecretpw" {
		t.Error("Sanitize must not mutate the original")
	}
}
