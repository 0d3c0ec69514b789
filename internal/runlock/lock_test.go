package runlock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
)

func TestAcquire_CreatesLockFile(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock.Release() })

	assert.FileExists(t, filepath.Join(dir, core.LockFileName))
	assert.Equal(t, FilePath(dir), lock.Path())
}

func TestAcquire_SecondHolderIsRejected(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Release() })

	second, err := Acquire(dir)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, core.IsLockUnavailable(err))
	assert.DirExists(t, dir, "a rejected holder must not touch the directory")
}

func TestAcquire_RaceHasSingleWinner(t *testing.T) {
	dir := t.TempDir()

	const contenders = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*Lock
		losers  int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := Acquire(dir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, core.IsLockUnavailable(err))
				losers++
				return
			}
			winners = append(winners, lock)
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, contenders-1, losers)
	require.NoError(t, winners[0].Release())
}

func TestRelease_RemovesLockFileAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	assert.NoFileExists(t, FilePath(dir))

	again, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestUnlock_KeepsLockFile(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())

	assert.FileExists(t, FilePath(dir))
	state, probed, err := Probe(dir)
	require.NoError(t, err)
	assert.Equal(t, StateAbandoned, state)
	require.NoError(t, probed.Unlock())
}

func TestProbe_States(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		state, lock, err := Probe(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, StateMissing, state)
		assert.Nil(t, lock)
	})

	t.Run("abandoned", func(t *testing.T) {
		dir := t.TempDir()
		// What a killed process leaves behind: the file, but no holder.
		require.NoError(t, os.WriteFile(FilePath(dir), nil, 0o600))

		state, lock, err := Probe(dir)
		require.NoError(t, err)
		assert.Equal(t, StateAbandoned, state)
		require.NotNil(t, lock)
		require.NoError(t, lock.Unlock())
		assert.FileExists(t, FilePath(dir))
	})

	t.Run("held", func(t *testing.T) {
		dir := t.TempDir()
		holder, err := Acquire(dir)
		require.NoError(t, err)
		t.Cleanup(func() { _ = holder.Release() })

		state, lock, err := Probe(dir)
		require.NoError(t, err)
		assert.Equal(t, StateHeld, state)
		assert.Nil(t, lock)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "missing", StateMissing.String())
	assert.Equal(t, "abandoned", StateAbandoned.String())
	assert.Equal(t, "held", StateHeld.String())
	assert.Equal(t, "unknown", State(42).String())
}

// interleave runs peer right after the first stat in Probe, the way another
// process can act between Probe's steps.
func interleave(t *testing.T, peer func()) {
	t.Helper()
	calls := 0
	statFile = func(name string) (os.FileInfo, error) {
		info, err := os.Stat(name)
		calls++
		if calls == 1 {
			peer()
		}
		return info, err
	}
	t.Cleanup(func() { statFile = os.Stat })
}

func TestProbe_ReleasingOwnerIsNotAborted(t *testing.T) {
	dir := t.TempDir()
	owner, err := Acquire(dir)
	require.NoError(t, err)

	interleave(t, func() { require.NoError(t, owner.Release()) })

	state, lock, err := Probe(dir)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, state)
	assert.Nil(t, lock)
	assert.NoFileExists(t, FilePath(dir), "probing must not recreate the lock file")
}

func TestProbe_OwnerDeletedLockFile(t *testing.T) {
	dir := t.TempDir()
	owner, err := Acquire(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = owner.Unlock() })

	// First half of Release: the file is gone, the lock is still held.
	require.NoError(t, os.Remove(FilePath(dir)))

	state, lock, err := Probe(dir)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, state)
	assert.Nil(t, lock)
	assert.NoFileExists(t, FilePath(dir))
}

func TestProbe_VanishedDirectoryIsMissing(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "run")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(FilePath(dir), nil, 0o600))

	interleave(t, func() { require.NoError(t, os.RemoveAll(dir)) })

	state, lock, err := Probe(dir)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, state)
	assert.Nil(t, lock)
	assert.NoDirExists(t, dir)
}

func TestProbe_ReplacedLockFileIsHeld(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(FilePath(dir), nil, 0o600))

	// The old file is kept under another name so its inode cannot be reused.
	interleave(t, func() {
		require.NoError(t, os.Rename(FilePath(dir), filepath.Join(dir, "old.lock")))
		require.NoError(t, os.WriteFile(FilePath(dir), nil, 0o600))
	})

	state, lock, err := Probe(dir)
	require.NoError(t, err)
	assert.Equal(t, StateHeld, state)
	assert.Nil(t, lock)

	again, err := Acquire(dir)
	require.NoError(t, err, "a replaced file must not stay locked by the probe")
	require.NoError(t, again.Release())
}
