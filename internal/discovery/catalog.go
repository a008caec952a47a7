package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// metadataKey holds the merge history inside a catalog file.
const metadataKey = "discovery_metadata"

// Catalog is a selector catalog file: category tables of key -> selector
// plus a log of the discovery runs merged into it. Entries that are neither
// are kept as they were read.
type Catalog struct {
	Categories Categorized
	Runs       []CatalogRun
	extra      map[string]jsoniter.RawMessage
}

// MarshalJSON flattens the catalog back into a single object.
func (c Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.object())
}

func (c Catalog) object() map[string]interface{} {
	out := make(map[string]interface{}, len(c.Categories)+len(c.extra)+1)
	for k, v := range c.extra {
		out[k] = v
	}
	for k, v := range c.Categories {
		out[k] = v
	}
	runs := c.Runs
	if runs == nil {
		runs = []CatalogRun{}
	}
	out[metadataKey] = runs
	return out
}

// UnmarshalJSON splits a catalog object into categories, runs and the rest.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var raw map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Categories = Categorized{}
	c.Runs = nil
	c.extra = nil
	for k, v := range raw {
		if k == metadataKey {
			if err := json.Unmarshal(v, &c.Runs); err != nil {
				return fmt.Errorf("invalid %s: %w", metadataKey, err)
			}
			continue
		}
		var table map[string]string
		if err := json.Unmarshal(v, &table); err == nil && table != nil {
			c.Categories[k] = table
			continue
		}
		if c.extra == nil {
			c.extra = make(map[string]jsoniter.RawMessage)
		}
		c.extra[k] = v
	}
	return nil
}

// Merge folds categorized into the catalog, overwriting existing keys, and
// records the run.
func (c *Catalog) Merge(categorized Categorized, pageURL string, at time.Time) CatalogRun {
	if c.Categories == nil {
		c.Categories = Categorized{}
	}
	run := CatalogRun{Timestamp: at, PageURL: pageURL, Categories: []string{}}
	for category, entries := range categorized {
		run.Categories = append(run.Categories, category)
		run.SelectorsAdded += len(entries)
		table, ok := c.Categories[category]
		if !ok {
			table = make(map[string]string, len(entries))
			c.Categories[category] = table
		}
		for k, v := range entries {
			table[k] = v
		}
	}
	sort.Strings(run.Categories)
	c.Runs = append(c.Runs, run)
	return run
}

// Lookup returns the selector stored under category/key.
func (c *Catalog) Lookup(category, key string) (string, bool) {
	sel, ok := c.Categories[category][key]
	return sel, ok
}

// LoadCatalog reads a catalog file. A missing file is an empty catalog; a
// leading ~ is expanded.
func LoadCatalog(path string) (*Catalog, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog path: %w", err)
	}
	c := &Catalog{Categories: Categorized{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}
	return c, nil
}

// SaveCatalog writes c to path, replacing the file atomically.
func SaveCatalog(path string, c *Catalog) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("invalid catalog path: %w", err)
	}
	data, err := json.MarshalIndent(c.object(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp catalog: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush catalog: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// MergeCatalog loads the catalog at path, merges categorized into it and
// writes it back.
func MergeCatalog(path string, categorized Categorized, pageURL string, at time.Time) (*Catalog, error) {
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	c.Merge(categorized, pageURL, at)
	if err := SaveCatalog(path, c); err != nil {
		return nil, err
	}
	return c, nil
}
