package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cthulhu/internal/store"
)

func TestDefaults(t *testing.T) {
	t.Setenv("CTHULHU_ENV", "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "http://localhost:8000/api/v1", cfg.CronjobBase)
	require.Equal(t, store.ServerPaging, cfg.StoreMode)
	require.Equal(t, 5, cfg.Errors.MaxItems)
	require.Equal(t, 10*time.Second, cfg.Errors.DedupeWindow)
	require.Zero(t, cfg.Errors.AutoDismiss)
	require.Equal(t, "资源未找到", cfg.Messages.Status[404])
	require.Equal(t, 2*time.Second, cfg.ProgressInterval)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CTHULHU_ENV", "PROD")
	t.Setenv("ARTEMIS_API_BASE", "https://artemis.internal/api/")
	t.Setenv("ERRORS_MAX_ITEMS", "8")
	t.Setenv("ERRORS_DEDUPE_WINDOW_MS", "2500")
	t.Setenv("ERRORS_AUTO_DISMISS_MS", "6000")
	t.Setenv("STORE_MODE", "client")
	t.Setenv("TASK_PAGE_SIZE", "not-a-number")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "https://prod-cronjob.example.com/api/v1", cfg.CronjobBase)
	require.Equal(t, "https://artemis.internal/api", cfg.ArtemisBase)
	require.Equal(t, 8, cfg.Errors.MaxItems)
	require.Equal(t, 2500*time.Millisecond, cfg.Errors.DedupeWindow)
	require.Equal(t, 6*time.Second, cfg.Errors.AutoDismiss)
	require.Equal(t, store.ClientPaging, cfg.StoreMode)
	require.Equal(t, store.DefaultPageSize, cfg.Store.PageSize)
}

func TestInvalidValues(t *testing.T) {
	t.Setenv("CTHULHU_ENV", "staging")
	_, err := FromEnv()
	require.Error(t, err)

	t.Setenv("CTHULHU_ENV", "dev")
	t.Setenv("STORE_MODE", "hybrid")
	_, err = FromEnv()
	require.Error(t, err)
}

func TestStatusMapFileIsMerged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.yaml")
	content := "status:\n  404: 任务不存在\n  418: 茶壶\ndefault: 出错了\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CTHULHU_ENV", "dev")
	t.Setenv("ERRORS_STATUS_MAP_FILE", path)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "任务不存在", cfg.Messages.Status[404])
	require.Equal(t, "茶壶", cfg.Messages.Status[418])
	require.Equal(t, "服务器内部错误", cfg.Messages.Status[500])
	require.Equal(t, "出错了", cfg.Messages.Default)
	require.Equal(t, "网络异常，请检查网络连接", cfg.Messages.Network)
}

func TestStatusMapFileErrors(t *testing.T) {
	_, err := LoadStatusMessages(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("status: [1, 2"), 0o600))
	_, err = LoadStatusMessages(path)
	require.Error(t, err)
}
