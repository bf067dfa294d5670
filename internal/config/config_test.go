package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 200.0, cfg.MaxLatency)
	require.Equal(t, 4, cfg.MaxConcurrency)
	require.Equal(t, 10, cfg.CheckpointRetention)
}

func TestApplyOverridesKnownKeys(t *testing.T) {
	cfg := Defaults()
	err := cfg.Apply([]byte(`
# comment
MAX_LATENCY=150
ENABLE_BGP=true
DNS_SERVERS=1.1.1.1, 8.8.8.8
TCP_CONGESTION_CONTROL="bbr"
`))
	require.NoError(t, err)
	require.Equal(t, 150.0, cfg.MaxLatency)
	require.True(t, cfg.EnableBGP)
	require.Equal(t, []string{"1.1.1.1", "8.8.8.8"}, cfg.DNSServers)
	require.Equal(t, "bbr", cfg.TCPCongestionControl)
}

func TestApplyRejectsUnknownKey(t *testing.T) {
	cfg := Defaults()
	err := cfg.Apply([]byte("NOT_A_REAL_KEY=1\n"))
	require.ErrorIs(t, err, ErrConfig)
}

func TestApplyRejectsMalformedLine(t *testing.T) {
	cfg := Defaults()
	err := cfg.Apply([]byte("this has no equals sign\n"))
	require.ErrorIs(t, err, ErrConfig)
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Apply([]byte("MAX_LATENCY=150\n")))
	require.NoError(t, cfg.ApplyEnv([]string{"NETOPT_MAX_LATENCY=99", "UNRELATED=ignored"}))
	require.Equal(t, 99.0, cfg.MaxLatency)
}

func TestLoadLayersSystemUserEnv(t *testing.T) {
	sysFile := t.TempDir() + "/system.conf"
	userFile := t.TempDir() + "/user.conf"
	writeFile(t, sysFile, "MAX_LATENCY=150\nMIN_WEIGHT=2\n")
	writeFile(t, userFile, "MAX_LATENCY=175\n")

	cfg, err := Load(sysFile, userFile, []string{"NETOPT_MIN_WEIGHT=5"})
	require.NoError(t, err)
	require.Equal(t, 175.0, cfg.MaxLatency) // user overrides system
	require.Equal(t, 5, cfg.MinWeight)      // env overrides both
}

func TestLoadMissingFilesUseDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/system.conf", "/nonexistent/user.conf", nil)
	require.NoError(t, err)
	require.Equal(t, Defaults().MaxLatency, cfg.MaxLatency)
}

func TestExcludeInterfacesPatternCompiles(t *testing.T) {
	cfg := Defaults()
	re, err := cfg.ExcludeInterfacesPattern()
	require.NoError(t, err)
	require.True(t, re.MatchString("docker0"))
	require.False(t, re.MatchString("eth0"))
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
