package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
environment: production
discord:
  token: secret
  guild_id: g1
  owner_id: owner
roles:
  member: member-role
  dev: dev-role
  admin: admin-role
  ban: ban-role
  requestable:
    - id: pilot-role
      name: Pilot
bans:
  backend: postgres
events:
  reminder_lead: 10m
netstatus:
  prefixes: [VV]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, BanBackendFile, cfg.Bans.Backend)
	require.Equal(t, "bans.json", cfg.Bans.File)
	require.Equal(t, 15*time.Minute, cfg.Events.ReminderLead)
	require.Equal(t, 20*time.Minute, cfg.NetStatus.Interval)
	require.Equal(t, 15*time.Second, cfg.NetStatus.Timeout)
	require.Equal(t, []string{"VV", "VL", "VD"}, cfg.NetStatus.Prefixes)
	require.Equal(t, 20, cfg.NetStatus.MaxItems)
	require.Equal(t, "0.0.0.0:3000", cfg.Server.Addr())
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "secret", cfg.Discord.Token)
	require.Equal(t, "owner", cfg.Discord.OwnerID)
	require.Equal(t, BanBackendPostgres, cfg.Bans.Backend)
	require.Equal(t, 10*time.Minute, cfg.Events.ReminderLead)
	require.Equal(t, []string{"VV"}, cfg.NetStatus.Prefixes)
	require.Equal(t, []Role{{ID: "pilot-role", Name: "Pilot"}}, cfg.Roles.Requestable)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("GUILDBOT_DISCORD_TOKEN", "from-env")
	t.Setenv("PORT", "8080")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.Discord.Token)
	require.Equal(t, ":8080", cfg.Server.Addr())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Discord: DiscordConfig{Token: "t", OwnerID: "o"},
		Bans:    BansConfig{Backend: BanBackendFile},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing token", func(c *Config) { c.Discord.Token = "" }},
		{"missing owner", func(c *Config) { c.Discord.OwnerID = "" }},
		{"unknown backend", func(c *Config) { c.Bans.Backend = "sqlite" }},
		{"zero poll interval", func(c *Config) { c.NetStatus.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestRolesConfig_IsElevated(t *testing.T) {
	roles := RolesConfig{Dev: "dev", Admin: "admin"}

	require.True(t, roles.IsElevated([]string{"x", "dev"}))
	require.True(t, roles.IsElevated([]string{"admin"}))
	require.False(t, roles.IsElevated([]string{"x"}))
	require.False(t, roles.IsElevated(nil))
	require.False(t, RolesConfig{}.IsElevated([]string{""}))
}

func TestFormatIndex(t *testing.T) {
	require.Equal(t, "guildbot-audit", FormatIndex(ElasticConfig{Prefix: "guildbot"}, "audit"))
}
