package archive

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"cthulhu/internal/errcapture"
)

func setupTestRepo(t *testing.T) Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=rwc", filepath.Join(t.TempDir(), "archive.db"))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(db))
	return NewSQLiteRepo(db)
}

func TestRecordAndList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	first := errcapture.ErrorRecord{ID: "1-aaaaaa", Status: 500, Message: "服务器内部错误", URL: "/a",
		Severity: errcapture.SeverityError, Timestamp: base}
	second := errcapture.ErrorRecord{ID: "2-bbbbbb", Status: 404, Message: "资源未找到", URL: "/b",
		Severity: errcapture.SeverityInfo, Timestamp: base.Add(time.Minute)}
	require.NoError(t, repo.Record(ctx, first, false))
	require.NoError(t, repo.Record(ctx, second, false))

	first.Timestamp = base.Add(2 * time.Minute)
	require.NoError(t, repo.Record(ctx, first, true))

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "1-aaaaaa", entries[0].RecordID)
	require.Equal(t, 2, entries[0].Occurrences)
	require.True(t, entries[0].LastSeen.Equal(base.Add(2*time.Minute)))
	require.True(t, entries[0].FirstSeen.Equal(base))
	require.Equal(t, 1, entries[1].Occurrences)
}

func TestDuplicateOfUnknownRecordInserts(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	rec := errcapture.ErrorRecord{ID: "9-cccccc", Status: 0, Message: "offline", Severity: errcapture.SeverityInfo,
		Timestamp: time.Now()}
	require.NoError(t, repo.Record(ctx, rec, true))
	entries, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPurge(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Record(ctx, errcapture.ErrorRecord{ID: "old", Status: 500, Message: "m",
		Severity: errcapture.SeverityError, Timestamp: old}, false))
	require.NoError(t, repo.Record(ctx, errcapture.ErrorRecord{ID: "new", Status: 500, Message: "m",
		Severity: errcapture.SeverityError, Timestamp: time.Now()}, false))

	n, err := repo.Purge(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].RecordID)
}
