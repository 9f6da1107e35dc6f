package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vowpact/internal/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestJSONStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenJSON(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateContract(ctx, sampleContract("c1", "u1", "tok1", baseTime)))
	require.NoError(t, s.CreateUser(ctx, &User{ID: "u1", Email: "v@example.com"}))
	require.NoError(t, s.SaveSession(ctx, &Session{Token: "t", UserID: "u1", ExpiresAt: baseTime.Add(time.Hour)}))
	require.NoError(t, s.Close())

	for _, name := range []string{contractsFile, usersFile, sessionsFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	reopened, err := OpenJSON(dir)
	require.NoError(t, err)
	defer reopened.Close()

	c, err := reopened.GetContract(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Photography for c1", c.Title)
	_, err = reopened.GetUserByEmail(ctx, "v@example.com")
	assert.NoError(t, err)
	_, err = reopened.GetSession(ctx, "t")
	assert.NoError(t, err)
}

func TestJSONStore_NoTempFilesLeftBehind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenJSON(dir)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		_, err := s.UpdateContract(ctx, "none", func(*contract.Contract) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	}
	require.NoError(t, s.CreateContract(ctx, sampleContract("c1", "u1", "tok1", baseTime)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "stray temp file %s", e.Name())
	}
}

func TestJSONStore_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, contractsFile), []byte("{not json"), 0644))
	_, err := OpenJSON(dir)
	assert.Error(t, err)
}

func TestJSONStore_ClosedRejectsWrites(t *testing.T) {
	s, err := OpenJSON(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.CreateContract(context.Background(), sampleContract("c1", "u1", "tok1", baseTime))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestJSONStore_ReloadIgnoresOwnWrite(t *testing.T) {
	ctx := context.Background()
	s, err := OpenJSON(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateContract(ctx, sampleContract("c1", "u1", "tok1", baseTime)))

	s.mu.Lock()
	changed, err := s.loadLocked(contractsFile)
	s.mu.Unlock()
	require.NoError(t, err)
	assert.False(t, changed)
}

// blockFile replaces name with a directory so the next atomic rename fails.
func blockFile(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "keep"), 0755))
}

func TestJSONStore_FailedFlushRollsBackSessions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenJSON(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveSession(ctx, &Session{Token: "live", UserID: "u1", ExpiresAt: baseTime.Add(time.Hour)}))
	require.NoError(t, s.SaveSession(ctx, &Session{Token: "old", UserID: "u1", ExpiresAt: baseTime.Add(-time.Hour)}))
	s.mu.RLock()
	before := s.written[sessionsFile]
	s.mu.RUnlock()

	blockFile(t, dir, sessionsFile)

	assert.Error(t, s.DeleteSession(ctx, "live"))
	_, err = s.GetSession(ctx, "live")
	assert.NoError(t, err, "session dropped although the delete was not persisted")

	n, err := s.PurgeExpiredSessions(ctx, baseTime)
	assert.Error(t, err)
	assert.Zero(t, n)
	_, err = s.GetSession(ctx, "old")
	assert.NoError(t, err, "expired session dropped although the purge was not persisted")

	s.mu.RLock()
	after := s.written[sessionsFile]
	s.mu.RUnlock()
	assert.Equal(t, before, after, "hash of a write that never landed was recorded")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "stray temp file %s", e.Name())
	}
}

func TestJSONStore_WatchPicksUpExternalEdit(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	s, err := OpenJSON(dir)
	require.NoError(t, err)
	require.NoError(t, s.Watch(ctx))

	require.NoError(t, s.CreateContract(ctx, sampleContract("c1", "u1", "tok1", baseTime)))

	// Another process writes a second contract into the file.
	external := contractsDoc{
		Version: fileFormatVersion,
		Contracts: []*contract.Contract{
			sampleContract("c1", "u1", "tok1", baseTime),
			sampleContract("c2", "u1", "tok2", baseTime),
		},
	}
	data, err := json.Marshal(external)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, contractsFile), data, 0644))

	assert.Eventually(t, func() bool {
		_, err := s.GetContract(ctx, "c2")
		return err == nil
	}, 3*time.Second, 25*time.Millisecond)

	s.mu.RLock()
	w := s.watcher
	s.mu.RUnlock()
	require.NotNil(t, w)
	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Events, 1)
	assert.GreaterOrEqual(t, stats.Reloads, 1)

	require.NoError(t, s.Close())
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	s, err := OpenJSON(dir)
	require.NoError(t, err)

	w, err := NewWatcher(s)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit.jsonl"), []byte("{}\n"), 0644))
	time.Sleep(300 * time.Millisecond)

	w.Stop()
	assert.Equal(t, 0, w.Stats().Events)
	assert.Equal(t, 0, w.Stats().Reloads)
}
