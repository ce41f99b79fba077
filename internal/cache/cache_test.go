package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	base := Fingerprint("hello", "en", "zh", "plain", map[string]string{"a": "1", "b": "2"})

	assert.Len(t, base, 64)
	assert.Equal(t, base, Fingerprint("hello", "en", "zh", "plain", map[string]string{"b": "2", "a": "1"}),
		"option order must not matter")

	different := []string{
		Fingerprint("hello!", "en", "zh", "plain", map[string]string{"a": "1", "b": "2"}),
		Fingerprint("hello", "en", "ja", "plain", map[string]string{"a": "1", "b": "2"}),
		Fingerprint("hello", "de", "zh", "plain", map[string]string{"a": "1", "b": "2"}),
		Fingerprint("hello", "en", "zh", "llm", map[string]string{"a": "1", "b": "2"}),
		Fingerprint("hello", "en", "zh", "plain", map[string]string{"a": "1"}),
	}
	for i, fp := range different {
		assert.NotEqual(t, base, fp, "case %d", i)
	}

	// 长度前缀保证字段边界
	assert.NotEqual(t,
		Fingerprint("ab", "c", "zh", "", nil),
		Fingerprint("a", "bc", "zh", "", nil))
}

func TestCacheHitAfterMiss(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		return "你好", nil
	}

	v, hit, err := c.Do(ctx, "k", fn)
	require.NoError(t, err)
	assert.Equal(t, "你好", v)
	assert.False(t, hit)

	v, hit, err = c.Do(ctx, "k", fn)
	require.NoError(t, err)
	assert.Equal(t, "你好", v)
	assert.True(t, hit)

	assert.Equal(t, 1, calls)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestCacheSingleFlight(t *testing.T) {
	c := New(nil)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "translated", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.Do(context.Background(), "same", fn)
		}(i)
	}

	// 等待第一个调用进入 fn，然后再给其余调用者加入 flight 的时间
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "translated", results[i])
	}
}

func TestCacheErrorNotStored(t *testing.T) {
	c := New(nil)
	boom := errors.New("backend down")

	_, _, err := c.Do(context.Background(), "k", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	v, _, err := c.Do(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCacheCallerAbandonsFlight(t *testing.T) {
	c := New(nil)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := c.Do(ctx, "slow", func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNopStoreDisablesReuse(t *testing.T) {
	c := New(NopStore{})
	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}

	for i := 0; i < 3; i++ {
		_, hit, err := c.Do(context.Background(), "k", fn)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 3, calls)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "translations.json")
	ctx := context.Background()

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "bbb", "second"))
	require.NoError(t, s.Set(ctx, "aaa", "first"))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(data), `"aaa"`), strings.Index(string(data), `"bbb"`), "entries sorted by hash")

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "aaa")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := OpenFileStore(path)
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
	require.NoError(t, s.Close())

	// 重新打开：迁移不会重复执行，数据保留
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	assert.Error(t, err)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12_more.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PDFTRANS_TEST_REDIS")
	if addr == "" {
		t.Skip("PDFTRANS_TEST_REDIS not set")
	}
	ctx := context.Background()

	s, err := NewRedisStore(RedisConfig{Addr: addr, Prefix: "pdftrans-test:", TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	key := Fingerprint(t.Name(), "en", "zh", "test", nil)
	require.NoError(t, s.Set(ctx, key, "cached"))
	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cached", v)

	_, ok, err = s.Get(ctx, "absent-"+key)
	require.NoError(t, err)
	assert.False(t, ok)
}
