package compiler

import (
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	input := []byte(`{"decls":[]}`)
	base := Key(input, Options{ClassName: "Main", JavaVersion: 6})

	assert.Len(t, base, 64)
	assert.Equal(t, base, Key(input, Options{ClassName: "Main", JavaVersion: 6}))
	assert.NotEqual(t, base, Key(input, Options{ClassName: "Main", JavaVersion: 6, DebugInfo: true}))
	assert.NotEqual(t, base, Key(input, Options{ClassName: "Other", JavaVersion: 6}))
	assert.NotEqual(t, base, Key([]byte(`{"decls": []}`), Options{ClassName: "Main", JavaVersion: 6}))
}

func TestCachePutGet(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := NewCache(fs, DefaultCacheDir)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	data := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	require.NoError(t, c.Put("k1", "prog.json", data))
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Equal(t, CacheStats{TotalEntries: 1, TotalSize: 4, Dir: DefaultCacheDir}, c.Stats())

	// 索引写到磁盘，重新打开后仍然命中
	reopened, err := NewCache(fs, DefaultCacheDir)
	require.NoError(t, err)
	_, ok = reopened.Get("k1")
	assert.True(t, ok)

	require.NoError(t, reopened.Invalidate("k1"))
	_, ok = reopened.Get("k1")
	assert.False(t, ok)
	assert.Zero(t, reopened.Stats().TotalSize)
}

func TestCacheDetectsTampering(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := NewCache(fs, "cache")
	require.NoError(t, err)
	require.NoError(t, c.Put("k", "a.json", []byte("class bytes")))

	require.NoError(t, afero.WriteFile(fs, c.dataPath("k"), []byte("tampered"), 0o644))
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().TotalEntries)
}

func TestCacheBadIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "cache/index.json", []byte("{not json"), 0o644))
	c, err := NewCache(fs, "cache")
	require.NoError(t, err)
	assert.Zero(t, c.Stats().TotalEntries)

	require.NoError(t, afero.WriteFile(fs, "cache/index.json", []byte(`{"version":"old","entries":{}}`), 0o644))
	c, err = NewCache(fs, "cache")
	require.NoError(t, err)
	assert.Equal(t, CacheVersion, c.index.Version)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := NewCache(fs, "cache")
	require.NoError(t, err)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for i := 0; i < MaxCacheEntries; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("k%03d", i), "", []byte{byte(i)}))
	}
	_, ok := c.Get("k000") // k000 变成最近使用
	require.True(t, ok)

	require.NoError(t, c.Put("new", "", []byte{1}))
	assert.Equal(t, MaxCacheEntries, c.Stats().TotalEntries)
	_, ok = c.Get("k000")
	assert.True(t, ok)
	_, ok = c.Get("k001")
	assert.False(t, ok)

	exists, err := afero.Exists(fs, c.dataPath("k001"))
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Clear())
	assert.Zero(t, c.Stats().TotalEntries)
}
