package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "PROXY_LISTEN_PORT", "SQL_PORT", "ENFORCEMENT_MODE")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 14333, cfg.ProxyListenPort)
	require.Equal(t, 1433, cfg.SQLPort)
	require.Equal(t, ModeLog, cfg.EnforcementMode)
	require.Equal(t, 25, cfg.TimeBudgetMS)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	os.Setenv("PROXY_LISTEN_PORT", "15000")
	os.Setenv("ENFORCEMENT_MODE", "enforce")
	t.Cleanup(func() {
		os.Unsetenv("PROXY_LISTEN_PORT")
		os.Unsetenv("ENFORCEMENT_MODE")
	})

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 15000, cfg.ProxyListenPort)
	require.Equal(t, ModeEnforce, cfg.EnforcementMode)
}

func TestLoadRejectsInvalidEnforcementMode(t *testing.T) {
	os.Setenv("ENFORCEMENT_MODE", "bogus")
	t.Cleanup(func() { os.Unsetenv("ENFORCEMENT_MODE") })

	_, err := Load()
	require.Error(t, err)
}

func TestListenAddrAndUpstreamAddr(t *testing.T) {
	cfg := Config{ProxyListenAddr: "0.0.0.0", ProxyListenPort: 1234, SQLHost: "db", SQLPort: 1433}
	require.Equal(t, "0.0.0.0:1234", cfg.ListenAddr())
	require.Equal(t, "db:1433", cfg.UpstreamAddr())
}
