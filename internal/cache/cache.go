// Package cache keeps price estimates for a fixed time-to-live, in memory
// and optionally mirrored to one JSON file per key.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rendimo/server/internal/models"
)

const DefaultTTL = 24 * time.Hour

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

type diskEntry struct {
	CreatedAt int64                `json:"created_at"`
	Value     models.PriceEstimate `json:"value"`
}

// Cache has no size bound; entries only go away when they expire or are
// overwritten.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
	dir     string
	ttl     time.Duration
	now     func() time.Time
	logger  *logrus.Logger
}

type Options struct {
	// Dir enables the disk mirror when non-empty
	Dir string
	TTL time.Duration
	Now func() time.Time
}

func New(logger *logrus.Logger, opts Options) (*Cache, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	return &Cache{
		entries: make(map[string]models.CacheEntry),
		dir:     opts.Dir,
		ttl:     opts.TTL,
		now:     opts.Now,
		logger:  logger,
	}, nil
}

// Key builds the cache key of an estimate query.
func Key(place, postalCode string, category models.Category, lookbackMonths int) string {
	return fmt.Sprintf("%s|%s|%s|%d",
		strings.ToLower(strings.TrimSpace(place)),
		strings.TrimSpace(postalCode),
		category,
		lookbackMonths,
	)
}

func (c *Cache) fresh(createdAt time.Time) bool {
	return c.now().Sub(createdAt) < c.ttl
}

// Get returns the live entry for key. On a memory miss the disk mirror is
// consulted and a live disk entry is loaded back into memory.
func (c *Cache) Get(key string) (models.PriceEstimate, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.fresh(entry.CreatedAt) {
		return entry.Value, true
	}

	entry, ok = c.readDisk(key)
	if !ok || !c.fresh(entry.CreatedAt) {
		return models.PriceEstimate{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A Set may have landed while the file was read.
	if current, ok := c.entries[key]; ok && current.CreatedAt.After(entry.CreatedAt) && c.fresh(current.CreatedAt) {
		return current.Value, true
	}
	c.entries[key] = entry

	return entry.Value, true
}

// Set stores value under key, stamped with the current time. Disk write
// failures are logged and otherwise ignored.
func (c *Cache) Set(key string, value models.PriceEstimate) {
	entry := models.CacheEntry{
		Key:       key,
		CreatedAt: c.now(),
		Value:     value,
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	if err := c.writeDisk(entry); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to write cache file")
	}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, unsafeChars.ReplaceAllString(key, "_")+".json")
}

func (c *Cache) readDisk(key string) (models.CacheEntry, bool) {
	if c.dir == "" {
		return models.CacheEntry{}, false
	}

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return models.CacheEntry{}, false
	}

	var stored diskEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Unreadable cache file")
		return models.CacheEntry{}, false
	}

	return models.CacheEntry{
		Key:       key,
		CreatedAt: time.Unix(stored.CreatedAt, 0),
		Value:     stored.Value,
	}, true
}

func (c *Cache) writeDisk(entry models.CacheEntry) error {
	if c.dir == "" {
		return nil
	}

	data, err := json.Marshal(diskEntry{
		CreatedAt: entry.CreatedAt.Unix(),
		Value:     entry.Value,
	})
	if err != nil {
		return err
	}

	// Write then rename so readers never see a partial file. Each writer
	// gets its own temp file; concurrent Sets of one key race on the rename.
	tmp, err := os.CreateTemp(c.dir, ".entry-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), c.path(entry.Key)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Len reports the number of in-memory entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
