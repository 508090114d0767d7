package settings

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horken7/your-mail-buddy/internal/credential"
	"github.com/horken7/your-mail-buddy/internal/model"
)

func baseConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestSettings_SaveWritesConfigAndSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := New(baseConfig(t), path, 80, 40)
	m.Init()

	stored := map[string]string{}
	m.setSecret = func(key, value string) error {
		stored[key] = value
		return nil
	}

	m.f.imapHost = " imap.example.com "
	m.f.imapPort = "993"
	m.f.smtpHost = "smtp.example.com"
	m.f.smtpPort = "587"
	m.f.account = "me@example.com"
	m.f.imapTLS = false
	m.f.smtpTLS = true
	m.f.assistantID = "asst_123"
	m.f.password = "app-pass"

	msg := m.save()()
	saved, ok := msg.(SavedMsg)
	require.True(t, ok, "got %T", msg)

	assert.Equal(t, "imap.example.com", saved.Config.Mailbox.IMAPHost)
	assert.Equal(t, 587, saved.Config.Mailbox.SMTPPort)
	assert.False(t, saved.Config.Mailbox.TLS)
	assert.True(t, saved.Config.Mailbox.SMTPTLS)
	assert.Equal(t, "asst_123", saved.Config.Analysis.AssistantID)

	// An empty API key keeps whatever is stored.
	assert.Equal(t, map[string]string{credential.EmailPassword: "app-pass"}, stored)

	reloaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", reloaded.Mailbox.Account)
	assert.Equal(t, "smtp.example.com", reloaded.Mailbox.SMTPHost)
	assert.False(t, reloaded.Mailbox.TLS)
	assert.True(t, reloaded.Mailbox.SMTPTLS)
}

func TestSettings_SecretFailureKeepsForm(t *testing.T) {
	m := New(baseConfig(t), filepath.Join(t.TempDir(), "config.yaml"), 80, 40)
	m.Init()
	m.setSecret = func(string, string) error { return errors.New("keyring locked") }
	m.f.apiKey = "sk-test"

	msg := m.save()()
	failed, ok := msg.(saveFailedMsg)
	require.True(t, ok)

	m, _ = m.Update(failed)
	assert.Contains(t, m.status, "keyring locked")
	assert.NotNil(t, m.form)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePort("993"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("abc"))

	assert.NoError(t, validateEmail("a@b.com"))
	assert.Error(t, validateEmail("@b.com"))
	assert.Error(t, validateEmail("ab"))

	assert.Error(t, validateRequired("Host")("  "))
}
