package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region appender-tests

type row struct {
	Token string `json:"token"`
	Note  string `json:"note,omitempty"`
}

func TestAppender_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.jsonl")
	a, err := OpenAppender(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, a.Append(row{Token: fmt.Sprintf("id-%d", i)}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, a.Close())

	rows, skipped, err := ReadAll[row](path)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Len(t, rows, 50)
}

func TestAppender_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")
	for _, tok := range []string{"a", "b"} {
		a, err := OpenAppender(path)
		require.NoError(t, err)
		require.NoError(t, a.Append(row{Token: tok}))
		require.NoError(t, a.Close())
	}
	rows, _, err := ReadAll[row](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Token)
	assert.Equal(t, "b", rows[1].Token)
}

func TestAppender_ClosedFails(t *testing.T) {
	a, err := OpenAppender(filepath.Join(t.TempDir(), "x.jsonl"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Append(row{Token: "late"}), os.ErrClosed)
	assert.NoError(t, a.Close())
}

func TestScan_LongLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	long := strings.Repeat("x", 256*1024)
	a, err := OpenAppender(path)
	require.NoError(t, err)
	require.NoError(t, a.Append(row{Token: "big", Note: long}))
	require.NoError(t, a.Close())

	rows, _, err := ReadAll[row](path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Note, len(long))
}

// #endregion appender-tests

// #region ledger-tests

func TestLoad_MissingFile(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestLoad_SkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")
	body := strings.Join([]string{
		`{"token":"a"}`,
		`{"token":`,
		``,
		`not json`,
		`{"scout":"no token"}`,
		`{"token":"b","extra":1}`,
		`{"token":"a"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Has("a"))
	assert.True(t, l.Has("b"))
	assert.False(t, l.Has("c"))

	l.Add("c")
	assert.True(t, l.Has("c"))
}

// #endregion ledger-tests

// #region file-lock-tests

func TestFileLocker(t *testing.T) {
	ctx := context.Background()
	name := filepath.Join(t.TempDir(), "index.jsonl")

	first, err := FileLocker{}.Acquire(ctx, name)
	require.NoError(t, err)

	_, err = FileLocker{}.Acquire(ctx, name)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))
	assert.Contains(t, err.Error(), "pid=")

	require.NoError(t, first.Release(ctx))
	again, err := FileLocker{}.Acquire(ctx, name)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
	assert.NoError(t, again.Release(ctx), "double release is a no-op")
}

// lockChildEnv names the store a re-executed test binary locks before exiting
// without releasing.
const lockChildEnv = "STORE_LOCK_CHILD_PATH"

func TestFileLocker_HolderExitFreesLock(t *testing.T) {
	if path := os.Getenv(lockChildEnv); path != "" {
		if _, err := LockStore(context.Background(), "", path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}
		os.Exit(1)
	}

	path := filepath.Join(t.TempDir(), "index_x.jsonl")
	cmd := exec.Command(os.Args[0], "-test.run=^TestFileLocker_HolderExitFreesLock$")
	cmd.Env = append(os.Environ(), lockChildEnv+"="+path)
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, string(out))
	require.Equal(t, 1, exitErr.ExitCode(), string(out))
	assert.FileExists(t, path+".lock", "child exits without releasing")

	release, err := LockStore(context.Background(), "", path)
	require.NoError(t, err)
	release()
}

// #endregion file-lock-tests

// #region redis-lock-tests

type fakeRedis struct {
	mu    sync.Mutex
	keys  map[string]string
	evals []string
	err   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]string)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, script)
	if f.keys[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	if script == releaseScript {
		delete(f.keys, keys[0])
	}
	return redis.NewCmdResult(int64(1), nil)
}

func TestRedisLocker_SingleWriter(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	locker := NewRedisLocker(fr, "test:", time.Minute)

	lock, err := locker.Acquire(ctx, "index.jsonl")
	require.NoError(t, err)
	assert.Contains(t, fr.keys, "test:index.jsonl")

	_, err = locker.Acquire(ctx, "index.jsonl")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release(ctx))
	assert.NotContains(t, fr.keys, "test:index.jsonl")

	lock, err = locker.Acquire(ctx, "index.jsonl")
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

func TestRedisLocker_ReleaseKeepsForeignKey(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	locker := NewRedisLocker(fr, "test:", time.Minute)

	lock, err := locker.Acquire(ctx, "s")
	require.NoError(t, err)
	fr.mu.Lock()
	fr.keys["test:s"] = "someone-else"
	fr.mu.Unlock()

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", fr.keys["test:s"])
}

func TestRedisLocker_Refreshes(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	locker := NewRedisLocker(fr, "test:", 30*time.Millisecond)

	lock, err := locker.Acquire(ctx, "s")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		for _, s := range fr.evals {
			if s == refreshScript {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, lock.Release(ctx))
}

func TestRedisLocker_BackendError(t *testing.T) {
	fr := newFakeRedis()
	fr.err = errors.New("connection refused")
	_, err := NewRedisLocker(fr, "", 0).Acquire(context.Background(), "s")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocked))
}

// #endregion redis-lock-tests

func TestLockStore_FileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index_a.jsonl")
	release, err := LockStore(context.Background(), "", path)
	require.NoError(t, err)

	_, err = LockStore(context.Background(), "", path)
	require.ErrorIs(t, err, ErrLocked)

	release()
	again, err := LockStore(context.Background(), "", path)
	require.NoError(t, err)
	again()
	assert.NoFileExists(t, path+".lock")
}
