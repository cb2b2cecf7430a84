package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"MESHCALL_SERVER", "MESHCALL_CODEC", "MESHCALL_NAME",
		"STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD",
		"PORT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultServer, cfg.ServerURL)
	assert.Equal(t, DefaultCodec, cfg.Codec)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
	assert.Equal(t, "ws://localhost:3000/ws?codec=msgpack", cfg.DialURL())
}

func TestFlagBeatsEnvBeatsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("STUN_SERVER", "stun:env.example:3478")
	t.Setenv("MESHCALL_NAME", "env-name")
	t.Setenv("MESHCALL_CODEC", "json")

	cfg, err := Load(Options{DisplayName: "flag-name"})
	require.NoError(t, err)
	assert.Equal(t, "flag-name", cfg.DisplayName)
	assert.Equal(t, "stun:env.example:3478", cfg.STUNServer)
	assert.Equal(t, "json", cfg.Codec)
}

func TestServerURLForms(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		in       string
		insecure bool
		want     string
	}{
		{"meet.example.com", false, "wss://meet.example.com/ws"},
		{"localhost:3000", true, "ws://localhost:3000/ws"},
		{"https://meet.example.com", false, "wss://meet.example.com/ws"},
		{"http://10.0.0.2:3000/signal", false, "ws://10.0.0.2:3000/signal"},
	}
	for _, tc := range cases {
		cfg, err := Load(Options{Server: tc.in, Insecure: tc.insecure})
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, cfg.ServerURL, tc.in)
	}

	_, err := Load(Options{Server: "ftp://nope"})
	assert.ErrorIs(t, err, ErrInvalidServer)
}

func TestTURNServersAndRelay(t *testing.T) {
	clearEnv(t)
	_, err := Load(Options{ForceRelay: true})
	assert.ErrorIs(t, err, ErrRelayNeedsTURN)

	cfg, err := Load(Options{TURNServer: "turn:relay.example", TURNUser: "u", TURNPass: "p", ForceRelay: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"turn:relay.example:3478?transport=udp",
		"turn:relay.example:3478?transport=tcp",
		"turns:relay.example:5349?transport=tcp",
	}, cfg.GetTURNServers())
	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestUnknownCodec(t *testing.T) {
	clearEnv(t)
	_, err := Load(Options{Codec: "xml"})
	assert.Error(t, err)
}

func TestLoadServer(t *testing.T) {
	clearEnv(t)
	cfg := LoadServer()
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "info", cfg.LogLevel)

	t.Setenv("PORT", "8080")
	assert.Equal(t, ":8080", LoadServer().Addr())
}
