package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailscale/accessbot/internal/access"
)

func TestConfig_Validate(t *testing.T) {
	validProfiles := []access.Profile{
		{
			Description: "Production access",
			Attribute:   "custom:prodAccess",
		},
	}

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
				Store:    StoreConfig{Path: "/path/to/db"},
				Profiles: validProfiles,
			},
			wantErr: false,
		},
		{
			name: "valid config with bolt backend",
			config: Config{
				Server:   ServerConfig{Port: 8080},
				Store:    StoreConfig{Backend: "bolt", Path: "/path/to/db"},
				Profiles: validProfiles,
			},
			wantErr: false,
		},
		{
			name: "invalid port - zero",
			config: Config{
				Server:   ServerConfig{Port: 0},
				Store:    StoreConfig{Path: "/path/to/db"},
				Profiles: validProfiles,
			},
			wantErr: true,
		},
		{
			name: "invalid port - too large",
			config: Config{
				Server:   ServerConfig{Port: 70000},
				Store:    StoreConfig{Path: "/path/to/db"},
				Profiles: validProfiles,
			},
			wantErr: true,
		},
		{
			name: "missing store path",
			config: Config{
				Server:   ServerConfig{Port: 8080},
				Profiles: validProfiles,
			},
			wantErr: true,
		},
		{
			name: "unknown store backend",
			config: Config{
				Server:   ServerConfig{Port: 8080},
				Store:    StoreConfig{Backend: "redis", Path: "/path/to/db"},
				Profiles: validProfiles,
			},
			wantErr: true,
		},
		{
			name: "no profiles",
			config: Config{
				Server: ServerConfig{Port: 8080},
				Store:  StoreConfig{Path: "/path/to/db"},
			},
			wantErr: true,
		},
		{
			name: "profile missing attribute",
			config: Config{
				Server: ServerConfig{Port: 8080},
				Store:  StoreConfig{Path: "/path/to/db"},
				Profiles: []access.Profile{
					{Description: "Broken profile"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	validConfig := `{
		"server": {
			"host": "0.0.0.0",
			"port": 8080
		},
		"store": {
			"backend": "sqlite",
			"path": "/path/to/db"
		},
		"log": {
			"format": "json",
			"level": "info"
		},
		"profiles": [
			{
				"description": "Access prod",
				"attribute": "custom:prodAccess",
				"maxSeconds": 3600,
				"notifyChannel": "C12345",
				"approverEmails": ["alice@example.com"],
				"canSelfApprove": true
			}
		]
	}`

	err := os.WriteFile(configPath, []byte(validConfig), 0644)
	require.NoError(t, err)

	// Test loading valid config
	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "sqlite", config.Store.Backend)
	assert.Equal(t, "/path/to/db", config.Store.Path)
	assert.Equal(t, "json", config.Log.Format)
	require.Len(t, config.Profiles, 1)
	assert.Equal(t, "custom:prodAccess", config.Profiles[0].Attribute)
	assert.Equal(t, 3600, config.Profiles[0].MaxSeconds)
	assert.True(t, config.Profiles[0].CanSelfApprove)

	// Test loading non-existent file
	_, err = Load("/nonexistent/config.json")
	assert.ErrorIs(t, err, ErrConfigFileNotFound)

	// Test loading invalid JSON
	invalidPath := filepath.Join(tmpDir, "invalid.json")
	err = os.WriteFile(invalidPath, []byte("invalid json"), 0644)
	require.NoError(t, err)

	_, err = Load(invalidPath)
	assert.Error(t, err)

	// Invalid config content fails validation on load
	badPath := filepath.Join(tmpDir, "bad.json")
	err = os.WriteFile(badPath, []byte(`{"server":{"port":8080},"store":{"path":"/db"},"profiles":[]}`), 0644)
	require.NoError(t, err)

	_, err = Load(badPath)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("TAILSCALE_CLIENT_ID", "k1234CNTRL")
	t.Setenv("TAILSCALE_CLIENT_SECRET", "tskey-client-secret")
	t.Setenv("CHAT_API_TOKEN", "xoxb-token")
	t.Setenv("CHAT_API_URL", "https://chat.example.com/api")
	t.Setenv("ACCESSBOT_WEBHOOK_SECRET", "hook-secret")

	creds, err := LoadCredentials()
	require.NoError(t, err)

	assert.Equal(t, "k1234CNTRL", creds.ClientID)
	assert.Equal(t, "tskey-client-secret", creds.ClientSecret)
	assert.Equal(t, "xoxb-token", creds.ChatToken)
	assert.Equal(t, "https://chat.example.com/api", creds.ChatBaseURL)
	assert.Equal(t, "hook-secret", creds.WebhookSecret)
	assert.True(t, creds.Configured())
}

func TestCredentials_Configured(t *testing.T) {
	assert.False(t, Credentials{}.Configured())
	assert.False(t, Credentials{ClientID: "id"}.Configured())
	assert.False(t, Credentials{ClientSecret: "secret"}.Configured())
	assert.True(t, Credentials{ClientID: "id", ClientSecret: "secret"}.Configured())
}
