package embedding_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/alphalite/internal/embedding"
)

func TestFileSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secrets.yaml")
	s := embedding.NewFileSecrets(path)

	_, err := s.Secret(embedding.SecretOpenAIAPIKey)
	assert.ErrorIs(t, err, embedding.ErrSecretNotFound)

	require.NoError(t, s.Set(embedding.SecretOpenAIAPIKey, "sk-1"))
	v, err := s.Secret(embedding.SecretOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-1", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second store on the same file sees the value.
	v, err = embedding.NewFileSecrets(path).Secret(embedding.SecretOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-1", v)

	require.NoError(t, s.Set(embedding.SecretOpenAIAPIKey, ""))
	_, err = s.Secret(embedding.SecretOpenAIAPIKey)
	assert.ErrorIs(t, err, embedding.ErrSecretNotFound)
}

func TestEnvAndChainSecrets(t *testing.T) {
	t.Setenv("ALPHALITE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	v, err := embedding.EnvSecrets{}.Secret(embedding.SecretOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", v)

	t.Setenv("ALPHALITE_OPENAI_API_KEY", "sk-prefixed")
	v, err = embedding.EnvSecrets{}.Secret(embedding.SecretOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", v)

	file := embedding.NewFileSecrets(filepath.Join(t.TempDir(), "secrets.yaml"))
	require.NoError(t, file.Set("other", "from-file"))

	chain := embedding.ChainSecrets{embedding.EnvSecrets{}, file}
	v, err = chain.Secret("other")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)

	_, err = chain.Secret("missing")
	assert.ErrorIs(t, err, embedding.ErrSecretNotFound)
}
