package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential sources reported by LineConfig.
const (
	SourceFile  = "file"
	SourceEnv   = "env"
	SourceMixed = "file+env"
	SourceNone  = "none"
)

// LineCredentials is a point-in-time copy of the LINE channel credentials.
type LineCredentials struct {
	ChannelAccessToken string
	ChannelSecret      string
	Source             string
}

type lineFile struct {
	ChannelAccessToken string    `yaml:"channel_access_token"`
	ChannelSecret      string    `yaml:"channel_secret"`
	UpdatedAt          time.Time `yaml:"updated_at,omitempty"`
}

// LineConfig holds the LINE channel credentials. It is built once at startup
// and shared by pointer between the messaging gateway and the settings
// endpoints. Each field comes from the YAML file when set there and from
// the environment otherwise.
type LineConfig struct {
	mu    sync.RWMutex
	path  string
	creds LineCredentials
}

// LoadLineConfig reads path (if present) and fills missing fields from the
// given environment values.
func LoadLineConfig(path, envToken, envSecret string) (*LineConfig, error) {
	var file lineFile
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read line config: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse line config %s: %w", path, err)
		}
	}

	creds := LineCredentials{
		ChannelAccessToken: file.ChannelAccessToken,
		ChannelSecret:      file.ChannelSecret,
	}
	fromFile, fromEnv := 0, 0
	for _, f := range []struct {
		dst *string
		env string
	}{
		{&creds.ChannelAccessToken, envToken},
		{&creds.ChannelSecret, envSecret},
	} {
		switch {
		case *f.dst != "":
			fromFile++
		case f.env != "":
			*f.dst = f.env
			fromEnv++
		}
	}
	creds.Source = source(fromFile, fromEnv)

	return &LineConfig{path: path, creds: creds}, nil
}

func source(fromFile, fromEnv int) string {
	switch {
	case fromFile > 0 && fromEnv > 0:
		return SourceMixed
	case fromFile > 0:
		return SourceFile
	case fromEnv > 0:
		return SourceEnv
	default:
		return SourceNone
	}
}

// Credentials returns the current credentials.
func (c *LineConfig) Credentials() LineCredentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// AccessToken returns the current channel access token, "" when unset.
func (c *LineConfig) AccessToken() string {
	return c.Credentials().ChannelAccessToken
}

// Update persists new credentials to the config file and makes them current.
// The file is replaced atomically and is readable by the owner only.
func (c *LineConfig) Update(token, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := yaml.Marshal(lineFile{
		ChannelAccessToken: token,
		ChannelSecret:      secret,
		UpdatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode line config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".line_config-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write line config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod line config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close line config: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace line config: %w", err)
	}

	c.creds = LineCredentials{ChannelAccessToken: token, ChannelSecret: secret, Source: SourceFile}
	return nil
}
