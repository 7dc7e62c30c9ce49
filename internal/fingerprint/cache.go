package fingerprint

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one hashed file version. Member is empty for plain files.
type Key struct {
	Path    string
	Member  string
	Size    int64
	ModTime int64
}

// Cache remembers content hashes of unchanged files. A nil *Cache is valid
// and never hits.
type Cache struct {
	entries *lru.Cache[Key, string]
}

// NewCache creates a cache holding up to size hashes.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[Key, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns a cached hash.
func (c *Cache) Get(k Key) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.entries.Get(k)
}

// Add stores a hash.
func (c *Cache) Add(k Key, sum string) {
	if c == nil {
		return
	}
	c.entries.Add(k, sum)
}

// Len returns the number of cached hashes.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
