package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// chdir keeps a stray ./config.* from leaking into tests.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, StoreFile, cfg.Store)
	require.Equal(t, filepath.Join("data", "journal.jsonl"), cfg.Journal)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, ":9108", cfg.MetricsAddr)
	require.Empty(t, cfg.Decimals)
	require.Equal(t, filepath.Join("data", "pools"), cfg.PoolsDir())
}

func TestLoadFlagsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openamm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis-addr: 127.0.0.1:6379\nkeeper-interval: 3s\n"), 0o644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data-dir", "", "")
	flags.StringSlice("decimals", nil, "")
	flags.String("owner", "", "")
	require.NoError(t, flags.Parse([]string{
		"--data-dir", dir,
		"--decimals", "0x00000000000000000000000000000000000000b1=6, 0x00000000000000000000000000000000000000c1=9",
		"--owner", "0x00000000000000000000000000000000000000d1",
	}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	require.Equal(t, 3*time.Second, cfg.KeeperInterval)
	require.Equal(t, uint8(6), cfg.Decimals[common.HexToAddress("0xb1")])
	require.Equal(t, uint8(9), cfg.Decimals[common.HexToAddress("0xc1")])
	require.Equal(t, common.HexToAddress("0xd1"), cfg.Owner)
	require.Equal(t, filepath.Join(dir, "venue.json"), cfg.VenuePath())
}

func TestLoadEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OPENAMM_STORE", "postgres")
	t.Setenv("OPENAMM_PG_DSN", "postgres://localhost/openamm")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.Store)
	require.Equal(t, "postgres://localhost/openamm", cfg.PGDSN)
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OPENAMM_STORE", "postgres")
	_, err := Load("", nil)
	require.ErrorContains(t, err, "pg-dsn")

	t.Setenv("OPENAMM_STORE", "file")
	t.Setenv("OPENAMM_DECIMALS", "0xb1=300")
	_, err = Load("", nil)
	require.Error(t, err)
}
