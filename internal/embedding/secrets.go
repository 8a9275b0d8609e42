package embedding

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// SecretOpenAIAPIKey names the OpenAI API key in a SecretStore.
const SecretOpenAIAPIKey = "openai_api_key"

// ErrSecretNotFound is returned when a SecretStore has no value for a name.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore looks up credentials by name. Providers resolve secrets on
// every call so a key stored while the daemon runs takes effect at once.
type SecretStore interface {
	Secret(name string) (string, error)
}

// EnvSecrets reads secrets from ALPHALITE_<NAME> environment variables, with
// OPENAI_API_KEY accepted for the OpenAI key.
type EnvSecrets struct{}

func (EnvSecrets) Secret(name string) (string, error) {
	if v := os.Getenv("ALPHALITE_" + strings.ToUpper(name)); v != "" {
		return v, nil
	}
	if name == SecretOpenAIAPIKey {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			return v, nil
		}
	}
	return "", goerr.Wrap(ErrSecretNotFound, "secret not set in environment", goerr.V("name", name))
}

// FileSecrets keeps secrets in a YAML map readable only by the owner.
type FileSecrets struct {
	path string
	mu   sync.Mutex
}

// NewFileSecrets returns a store backed by path. The file is created on the
// first Set.
func NewFileSecrets(path string) *FileSecrets {
	return &FileSecrets{path: path}
}

func (f *FileSecrets) Secret(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := values[name]
	if !ok || v == "" {
		return "", goerr.Wrap(ErrSecretNotFound, "secret not in file", goerr.V("name", name), goerr.V("path", f.path))
	}
	return v, nil
}

// Set stores value under name, replacing the file atomically with mode 0600.
// An empty value removes the secret.
func (f *FileSecrets) Set(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if value == "" {
		delete(values, name)
	} else {
		values[name] = value
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return goerr.Wrap(err, "failed to encode secrets")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return goerr.Wrap(err, "failed to create secrets directory", goerr.V("path", f.path))
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write secrets", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return goerr.Wrap(err, "failed to replace secrets file", goerr.V("path", f.path))
	}
	return nil
}

func (f *FileSecrets) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read secrets", goerr.V("path", f.path))
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, goerr.Wrap(err, "failed to parse secrets", goerr.V("path", f.path))
	}
	return values, nil
}

// ChainSecrets asks each store in turn and returns the first hit.
type ChainSecrets []SecretStore

func (c ChainSecrets) Secret(name string) (string, error) {
	for _, s := range c {
		if v, err := s.Secret(name); err == nil {
			return v, nil
		} else if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", goerr.Wrap(ErrSecretNotFound, "secret not found", goerr.V("name", name))
}
