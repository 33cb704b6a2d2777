// cache.go - class 文件构建缓存
//
// 按输入程序和编译选项的内容哈希缓存生成的 class 字节，
// 输入和选项都没变时 kforge build 直接复用上次的结果。

package compiler

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

const (
	// CacheVersion 缓存版本，版本不匹配时清空缓存
	CacheVersion = "kforge-1"

	// DefaultCacheDir 默认缓存目录
	DefaultCacheDir = ".kforge-cache"

	// MaxCacheEntries 最大缓存条目数
	MaxCacheEntries = 256

	indexFile = "index.json"
)

// Cache 构建缓存
type Cache struct {
	mu    sync.Mutex
	fs    afero.Fs
	dir   string
	index *cacheIndex
	now   func() time.Time
}

type cacheIndex struct {
	Version   string                 `json:"version"`
	Entries   map[string]*CacheEntry `json:"entries"`
	TotalSize int64                  `json:"total_size"`
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Key         string    `json:"key"`
	Source      string    `json:"source"`
	DataHash    string    `json:"data_hash"`
	Size        int64     `json:"size"`
	CompiledAt  time.Time `json:"compiled_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
}

// CacheStats 缓存统计信息
type CacheStats struct {
	TotalEntries int
	TotalSize    int64
	Dir          string
}

// NewCache 打开 dir 下的缓存，索引损坏或版本不符时从空缓存开始
func NewCache(fs afero.Fs, dir string) (*Cache, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache directory %s", dir)
	}
	c := &Cache{fs: fs, dir: dir, now: time.Now}
	if err := c.loadIndex(); err != nil || c.index.Version != CacheVersion {
		c.index = newIndex()
	}
	return c, nil
}

func newIndex() *cacheIndex {
	return &cacheIndex{Version: CacheVersion, Entries: make(map[string]*CacheEntry)}
}

// Key 输入程序和编译选项的内容哈希
func Key(input []byte, opts Options) string {
	h, _ := blake2b.New256(nil)
	h.Write(input)
	fmt.Fprintf(h, "\x00%s\x00%s\x00%d\x00%t\x00%t",
		opts.ClassName, opts.SourceFile, opts.JavaVersion, opts.DebugInfo, opts.AllowUnverified)
	return hex.EncodeToString(h.Sum(nil))
}

// Get 取出缓存的 class 字节；文件缺失或内容被改动时删除条目
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.index.Entries[key]
	if !ok {
		return nil, false
	}
	data, err := afero.ReadFile(c.fs, c.dataPath(key))
	if err != nil || contentHash(data) != entry.DataHash {
		c.removeEntryUnsafe(key)
		return nil, false
	}

	entry.AccessedAt = c.now()
	entry.AccessCount++
	return data, true
}

// Put 存入 class 字节，source 只用于展示
func (c *Cache) Put(key, source string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := afero.WriteFile(c.fs, c.dataPath(key), data, 0o644); err != nil {
		return errors.Wrap(err, "write cache entry")
	}
	if old, ok := c.index.Entries[key]; ok {
		c.index.TotalSize -= old.Size
	}

	now := c.now()
	c.index.Entries[key] = &CacheEntry{
		Key:         key,
		Source:      source,
		DataHash:    contentHash(data),
		Size:        int64(len(data)),
		CompiledAt:  now,
		AccessedAt:  now,
		AccessCount: 1,
	}
	c.index.TotalSize += int64(len(data))

	if len(c.index.Entries) > MaxCacheEntries {
		c.evictLRU(len(c.index.Entries) - MaxCacheEntries)
	}
	return c.saveIndex()
}

// Invalidate 使缓存条目失效
func (c *Cache) Invalidate(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntryUnsafe(key)
	return c.saveIndex()
}

// Clear 清空所有缓存
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.index.Entries {
		c.removeEntryUnsafe(key)
	}
	c.index = newIndex()
	return c.saveIndex()
}

// Stats 获取缓存统计
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		TotalEntries: len(c.index.Entries),
		TotalSize:    c.index.TotalSize,
		Dir:          c.dir,
	}
}

// ============================================================================
// 内部方法
// ============================================================================

func (c *Cache) dataPath(key string) string {
	return filepath.Join(c.dir, key+".class")
}

func (c *Cache) loadIndex() error {
	data, err := afero.ReadFile(c.fs, filepath.Join(c.dir, indexFile))
	if err != nil {
		return err
	}
	idx := newIndex()
	if err := json.Unmarshal(data, idx); err != nil {
		return err
	}
	c.index = idx
	return nil
}

func (c *Cache) saveIndex() error {
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(afero.WriteFile(c.fs, filepath.Join(c.dir, indexFile), data, 0o644), "write cache index")
}

// removeEntryUnsafe 删除缓存条目（不加锁）
func (c *Cache) removeEntryUnsafe(key string) {
	entry, ok := c.index.Entries[key]
	if !ok {
		return
	}
	_ = c.fs.Remove(c.dataPath(key))
	c.index.TotalSize -= entry.Size
	delete(c.index.Entries, key)
}

// evictLRU 删除最久未访问的 count 个条目
func (c *Cache) evictLRU(count int) {
	entries := make([]*CacheEntry, 0, len(c.index.Entries))
	for _, entry := range c.index.Entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AccessedAt.Equal(entries[j].AccessedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].AccessedAt.Before(entries[j].AccessedAt)
	})
	for i := 0; i < count && i < len(entries); i++ {
		c.removeEntryUnsafe(entries[i].Key)
	}
}

func contentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
