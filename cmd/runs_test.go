package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/chainopt/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIDs(infos []store.RecordInfo) []string {
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.RunID
	}
	return ids
}

func sampleInfos(now time.Time) []store.RecordInfo {
	return []store.RecordInfo{
		{RunID: "run1", StartedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", StartedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", StartedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", StartedAt: now.AddDate(0, 0, -30)},
	}
}

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	toDelete := selectRunsForDeletion(sampleInfos(now), 0, 7*24*time.Hour, now)
	assert.Equal(t, []string{"run4", "run1"}, runIDs(toDelete))
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	toDelete := selectRunsForDeletion(sampleInfos(now), 2, 0, now)
	assert.Equal(t, []string{"run4", "run1"}, runIDs(toDelete))
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	// keep the newest 3, but nothing older than 4 days
	toDelete := selectRunsForDeletion(sampleInfos(now), 3, 4*24*time.Hour, now)
	assert.Equal(t, []string{"run4", "run1", "run2"}, runIDs(toDelete))
}

func TestSelectRunsForDeletion_NothingToDelete(t *testing.T) {
	now := time.Now()
	assert.Empty(t, selectRunsForDeletion(sampleInfos(now), 10, 0, now))
	assert.Empty(t, selectRunsForDeletion(sampleInfos(now), 0, 90*24*time.Hour, now))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.bytes))
	}
}

func TestGetDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 200), 0644))

	size, err := getDirSize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(300), size)

	_, err = getDirSize(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func seedRecords(t *testing.T, s *store.FSStore, now time.Time) {
	t.Helper()
	for i, age := range []int{30, 10, 1} {
		require.NoError(t, s.SaveRecord(&store.Record{
			RunID:      []string{"old", "middle", "new"}[i],
			ConfigPath: "chain.hcl",
			Targets:    []store.Target{{LinkIndex: 0, Name: "gain"}},
			Status:     "improved",
			StartedAt:  now.AddDate(0, 0, -age),
		}))
	}
}

func TestListAndCleanRuns(t *testing.T) {
	s, err := store.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	seedRecords(t, s, time.Now())

	var out bytes.Buffer
	require.NoError(t, listRuns(&out, s))
	assert.Contains(t, out.String(), "RUN ID")
	assert.Contains(t, out.String(), "Total runs: 3")

	out.Reset()
	require.NoError(t, cleanRuns(strings.NewReader("n\n"), &out, s, 1, 0, false))
	assert.Contains(t, out.String(), "Aborted.")
	infos, err := s.ListRecords()
	require.NoError(t, err)
	assert.Len(t, infos, 3)

	out.Reset()
	require.NoError(t, cleanRuns(strings.NewReader("y\n"), &out, s, 1, 0, false))
	assert.Contains(t, out.String(), "Deleted 2 run record(s), 0 failed.")
	infos, err = s.ListRecords()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, runIDs(infos))
}

func TestListRunsEmpty(t *testing.T) {
	s, err := store.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, listRuns(&out, s))
	assert.Equal(t, "No run records found.\n", out.String())
}
