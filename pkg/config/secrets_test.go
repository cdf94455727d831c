package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"GEMINI_API_KEY":    "gm-test",
		"ANTHROPIC_API_KEY": "sk-ant-test",
	}

	require.NoError(t, EncryptSecretsFile(dir, "hunter2-but-longer", secrets))
	assert.True(t, SecretsFileExists(dir))

	info, err := os.Stat(SecretsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	decrypted, err := DecryptSecretsFile(dir, "hunter2-but-longer")
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)
}

func TestDecryptWithWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "right", map[string]string{"OPENAI_API_KEY": "sk"}))

	_, err := DecryptSecretsFile(dir, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestDecryptRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{}))
	require.NoError(t, os.WriteFile(SecretsPath(dir), []byte("short"), 0o600))

	_, err := DecryptSecretsFile(dir, "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
}

func TestSaveSecretsToFileUsesMemory(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	SetSecret("OPENAI_API_KEY", "sk-mem")
	SetSecret("GEMINI_API_KEY", "gm-mem")
	assert.Equal(t, []string{"GEMINI_API_KEY", "OPENAI_API_KEY"}, SecretNames())

	dir := t.TempDir()
	require.NoError(t, SaveSecretsToFile(dir, "pw"))

	decrypted, err := DecryptSecretsFile(dir, "pw")
	require.NoError(t, err)
	assert.Equal(t, "sk-mem", decrypted["OPENAI_API_KEY"])
}

func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"ANTHROPIC_API_KEY": "from-file"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "env-only")

	v, err := GetSecret("ANTHROPIC_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)

	v, err = GetSecret("OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "env-only", v)

	t.Setenv("MISSING_KEY_FOR_TEST", "")
	_, err = GetSecret("MISSING_KEY_FOR_TEST")
	assert.Error(t, err)
}
