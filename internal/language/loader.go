package language

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/msto63/krishisaathi/pkg/core/logging"
)

// Fetcher retrieves the backend's published language names keyed by id
type Fetcher interface {
	Languages(ctx context.Context) (map[string]string, error)
}

// Options controls how Load assembles the catalog
type Options struct {
	// File is an optional YAML override file
	File string

	// Fetcher is an optional remote source of display names
	Fetcher Fetcher

	// FetchTimeout bounds the remote fetch (default 5s)
	FetchTimeout time.Duration

	Logger *logging.Logger
}

// fileFormat is the YAML layout of a catalog override file
type fileFormat struct {
	Languages []Language `yaml:"languages"`
}

// LoadFile reads language entries from a YAML file
func LoadFile(path string) ([]Language, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return f.Languages, nil
}

// Load builds the catalog: built-in entries, then the override file,
// then remote display names. Every failure is logged and skipped, so
// the result is always usable.
func Load(ctx context.Context, opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	catalog := Builtin()

	if opts.File != "" {
		entries, err := LoadFile(opts.File)
		if err != nil {
			logger.Warn("Catalog file ignored", "file", opts.File, "error", err)
		} else if merged, err := overlay(builtin, entries); err != nil {
			logger.Warn("Catalog file rejected", "file", opts.File, "error", err)
		} else {
			catalog = merged
			logger.Debug("Catalog file applied", "file", opts.File, "languages", catalog.Len())
		}
	}

	if opts.Fetcher != nil {
		timeout := opts.FetchTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		names, err := opts.Fetcher.Languages(fetchCtx)
		cancel()
		if err != nil {
			logger.Warn("Remote language list unavailable, using built-in catalog", "error", err)
		} else {
			unknown := catalog.MergeRemote(names)
			if len(unknown) > 0 {
				sort.Strings(unknown)
				logger.Warn("Backend lists languages without locale data", "ids", unknown)
			}
		}
	}

	return catalog
}

// overlay applies override entries on top of base. Matching ids replace
// non-empty fields; new ids are appended in file order.
func overlay(base, overrides []Language) (*Catalog, error) {
	entries := make([]Language, len(base))
	copy(entries, base)

	pos := make(map[string]int, len(entries))
	for i, l := range entries {
		pos[l.ID] = i
	}

	for _, o := range overrides {
		o.ID = strings.ToLower(strings.TrimSpace(o.ID))
		i, ok := pos[o.ID]
		if !ok {
			pos[o.ID] = len(entries)
			entries = append(entries, o)
			continue
		}
		if o.DisplayName != "" {
			entries[i].DisplayName = o.DisplayName
		}
		if o.LocaleFamily != "" {
			entries[i].LocaleFamily = o.LocaleFamily
		}
		if o.LocaleTag != "" {
			entries[i].LocaleTag = o.LocaleTag
		}
	}
	return New(entries)
}
