// Package classify maps raw product records to category tags using an
// externally configured, hot-reloadable keyword table.
package classify

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shopmon/shopmon/internal/catalog"
)

// DefaultTag is assigned when no keyword entry matches.
const DefaultTag = "Other"

// Entry is one ordered keyword rule: the first entry with a matching
// keyword wins.
type Entry struct {
	Tag      string   `mapstructure:"tag"`
	Keywords []string `mapstructure:"keywords"`
}

// Table is a parsed keyword table plus the allow-set of categories the
// deployment cares about.
type Table struct {
	Entries     []Entry
	Interesting map[string]struct{}
}

// tableFile mirrors the YAML layout of the external table resource.
type tableFile struct {
	Categories  []Entry  `mapstructure:"categories"`
	Interesting []string `mapstructure:"interesting"`
}

// Classifier serves category lookups from the keyword table, reloading it
// whenever the backing file's modification time advances. Load failures
// never propagate: the classifier logs and serves an empty table until the
// file becomes readable again.
type Classifier struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	modTime time.Time
	loaded  bool
	table   Table
}

// New constructs a Classifier backed by the table file at path. The file
// is read lazily on first use.
func New(path string, logger *zap.Logger) *Classifier {
	return &Classifier{path: path, logger: logger}
}

// Classify lowercases and concatenates the product's category field,
// title, description and tags, then returns the first matching entry's
// tag, or DefaultTag.
func (c *Classifier) Classify(p catalog.Product) string {
	text := searchText(p)
	for _, entry := range c.Table().Entries {
		for _, kw := range entry.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return entry.Tag
			}
		}
	}
	return DefaultTag
}

// Interesting reports whether the tag belongs to the configured allow-set.
func (c *Classifier) Interesting(tag string) bool {
	_, ok := c.Table().Interesting[tag]
	return ok
}

// Table returns the current keyword table, reloading from disk when the
// backing file changed since the last load.
func (c *Classifier) Table() Table {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		if !c.loaded {
			c.logger.Error("keyword table unavailable, serving empty table",
				zap.String("path", c.path), zap.Error(err))
			c.loaded = true
			c.table = Table{Interesting: map[string]struct{}{}}
		}
		return c.table
	}
	if c.loaded && !info.ModTime().After(c.modTime) {
		return c.table
	}

	table, err := loadTable(c.path)
	if err != nil {
		c.logger.Error("keyword table reload failed, keeping previous table",
			zap.String("path", c.path), zap.Error(err))
		if !c.loaded {
			c.table = Table{Interesting: map[string]struct{}{}}
		}
		c.loaded = true
		c.modTime = info.ModTime()
		return c.table
	}

	c.logger.Info("keyword table loaded",
		zap.String("path", c.path),
		zap.Int("entries", len(table.Entries)),
		zap.Int("interesting", len(table.Interesting)),
	)
	c.table = table
	c.modTime = info.ModTime()
	c.loaded = true
	return c.table
}

func loadTable(path string) (Table, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Table{}, fmt.Errorf("read keyword table: %w", err)
	}
	var raw tableFile
	if err := v.Unmarshal(&raw); err != nil {
		return Table{}, fmt.Errorf("unmarshal keyword table: %w", err)
	}
	table := Table{
		Entries:     raw.Categories,
		Interesting: make(map[string]struct{}, len(raw.Interesting)),
	}
	for _, tag := range raw.Interesting {
		table.Interesting[tag] = struct{}{}
	}
	return table, nil
}

func searchText(p catalog.Product) string {
	parts := []string{
		p.ProductType,
		p.Title,
		p.BodyHTML,
		strings.Join(p.Tags, " "),
	}
	return strings.ToLower(strings.Join(parts, " "))
}
