package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"
)

// #region locker

// ErrLocked means another writer holds the store.
var ErrLocked = errors.New("store is locked by another writer")

// Lock is a held store lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker grants single-writer access to a named store.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lock, error)
}

// #endregion locker

// #region file-locker

// FileLocker locks a store with an advisory flock on "<name>.lock". The kernel
// drops the lock when the holder exits, so a killed writer never strands it.
type FileLocker struct{}

type fileLock struct {
	path string
	f    *os.File
	once sync.Once
}

// Acquire takes the lock without blocking or returns ErrLocked if another
// process holds it.
func (FileLocker) Acquire(_ context.Context, name string) (Lock, error) {
	path := name + ".lock"
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open lock %s: %w", path, err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			holder, _ := io.ReadAll(f)
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, path, strings.TrimSpace(string(holder)))
			}
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		// A releasing holder may have unlinked the file between open and flock.
		if !samePath(f, path) {
			f.Close()
			continue
		}
		host, _ := os.Hostname()
		if err := f.Truncate(0); err == nil {
			fmt.Fprintf(f, "pid=%d host=%s since=%s\n", os.Getpid(), host, time.Now().UTC().Format(time.RFC3339))
		}
		return &fileLock{path: path, f: f}, nil
	}
}

func samePath(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

// Release unlinks the lock file while still holding the flock, then unlocks.
func (l *fileLock) Release(context.Context) error {
	var err error
	l.once.Do(func() {
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = fmt.Errorf("release lock %s: %w", l.path, rmErr)
		}
		l.f.Close()
	})
	return err
}

// #endregion file-locker

// #region redis-locker

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// refreshScript extends the TTL only if the key still holds our token.
const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// redisClient is the subset of *redis.Client the locker needs.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker holds the lock as a Redis key with a per-holder token. The key
// is refreshed in the background until released.
type RedisLocker struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a locker on an existing client.
func NewRedisLocker(client redisClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "scenario-miner:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// DialRedisLocker connects to addr and verifies the connection.
func DialRedisLocker(ctx context.Context, addr string, ttl time.Duration) (*RedisLocker, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisLocker(client, "", ttl), client, nil
}

type redisLock struct {
	locker *RedisLocker
	key    string
	token  string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Acquire sets the lock key if absent or returns ErrLocked.
func (r *RedisLocker) Acquire(ctx context.Context, name string) (Lock, error) {
	key := r.prefix + name
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	l := &redisLock{
		locker: r,
		key:    key,
		token:  token,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.keepAlive()
	return l, nil
}

func (l *redisLock) keepAlive() {
	defer close(l.done)
	ticker := time.NewTicker(l.locker.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.locker.ttl/3)
			n, err := l.locker.client.Eval(ctx, refreshScript, []string{l.key}, l.token, l.locker.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				log.Printf("[STORE] refresh lock %s: %v", l.key, err)
				continue
			}
			if n == 0 {
				log.Printf("[STORE] lock %s lost", l.key)
				return
			}
		}
	}
}

// Release stops the refresher and deletes the key if we still own it.
func (l *redisLock) Release(ctx context.Context) error {
	l.once.Do(func() { close(l.stop) })
	<-l.done
	if err := l.locker.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// #endregion redis-locker

// #region lock-store

// LockStore takes the single-writer lock for path, through redis when redisAddr
// is set and a lock file otherwise. release frees the lock and any redis connection.
func LockStore(ctx context.Context, redisAddr, path string) (release func(), err error) {
	var (
		locker  Locker = FileLocker{}
		closeFn        = func() {}
	)
	if redisAddr != "" {
		rl, client, err := DialRedisLocker(ctx, redisAddr, 30*time.Second)
		if err != nil {
			return nil, err
		}
		locker = rl
		closeFn = func() { client.Close() }
	}
	lock, err := locker.Acquire(ctx, path)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Printf("[STORE] %v", err)
		}
		closeFn()
	}, nil
}

// #endregion lock-store
