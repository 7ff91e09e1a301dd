package engine

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// ResultCache is a two-tier cache for fused results: an in-memory LRU in front
// of an optional BadgerDB tier. Keys embed the stores' data version, so a data
// refresh naturally invalidates every prior entry without an explicit flush.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List

	db     *badger.DB // nil when the persistent tier is disabled
	logger *zap.Logger
}

type cacheEntry struct {
	key    string
	result *models.FusedResult
}

// NewResultCache creates a cache with the given memory capacity. If
// persistentPath is non-empty a BadgerDB tier is opened there; a failure to
// open it degrades to memory-only rather than failing construction.
func NewResultCache(memoryEntries int, persistentPath string, logger *zap.Logger) *ResultCache {
	if memoryEntries <= 0 {
		memoryEntries = 256
	}
	c := &ResultCache{
		capacity: memoryEntries,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		logger:   logger,
	}
	if persistentPath != "" {
		opts := badger.DefaultOptions(persistentPath).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			logger.Warn("persistent cache unavailable, running memory-only",
				zap.String("path", persistentPath), zap.Error(err))
		} else {
			c.db = db
		}
	}
	return c
}

// Key derives a stable cache key from the query's semantic content and the
// data version. Codes and fields are sorted so equivalent queries collide.
func (c *ResultCache) Key(q *models.Query, dataVersion string) string {
	codes := append([]string{}, q.Filters.Codes...)
	sort.Strings(codes)
	fields := append([]string{}, q.Fields...)
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(q.Text)
	b.WriteByte('\n')
	b.WriteString(strings.Join(codes, ","))
	b.WriteByte('\n')
	b.WriteString(q.Filters.Entity)
	b.WriteByte('\n')
	b.WriteString(q.Filters.Category)
	b.WriteByte('\n')
	b.WriteString(strings.Join(fields, ","))
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(q.TopK))
	b.WriteByte('\n')
	b.WriteString(dataVersion)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result for key, checking the memory tier first and
// falling through to the persistent tier. Persistent hits are promoted.
func (c *ResultCache) Get(key string) (*models.FusedResult, bool) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		result := el.Value.(*cacheEntry).result
		c.mu.Unlock()
		return result, true
	}
	c.mu.Unlock()

	if c.db == nil {
		return nil, false
	}
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	var result models.FusedResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("discarding corrupt cache entry", zap.Error(err))
		return nil, false
	}
	c.setMemory(key, &result)
	return &result, true
}

// Set stores a result under key in both tiers.
func (c *ResultCache) Set(key string, result *models.FusedResult) {
	c.setMemory(key, result)
	if c.db == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		c.logger.Warn("persistent cache write failed", zap.Error(err))
	}
}

func (c *ResultCache) setMemory(key string, result *models.FusedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, result: result})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of entries in the memory tier.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close releases the persistent tier, if open.
func (c *ResultCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
