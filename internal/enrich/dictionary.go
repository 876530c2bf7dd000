package enrich

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
)

// Dictionary looks up entries by expression or reading
type Dictionary interface {
	Lookup(ctx context.Context, term string, limit int) ([]annotation.DictionaryEntry, error)
}

// NoopDictionary never finds anything. Used when no source is configured.
type NoopDictionary struct{}

// Lookup always misses.
func (NoopDictionary) Lookup(context.Context, string, int) ([]annotation.DictionaryEntry, error) {
	return nil, nil
}

// MemoryDictionary is an in-process index over a JSON Lines export
type MemoryDictionary struct {
	index map[string][]int
	keys  []string
	data  []annotation.DictionaryEntry
	fuzzy bool
}

// NewMemoryDictionary indexes entries by expression and reading. With fuzzy
// set, a lookup that misses falls back to prefix matches.
func NewMemoryDictionary(entries []annotation.DictionaryEntry, fuzzy bool) *MemoryDictionary {
	d := &MemoryDictionary{index: make(map[string][]int), data: entries, fuzzy: fuzzy}
	for i, e := range entries {
		for _, key := range []string{e.Expression, e.Reading} {
			if key == "" {
				continue
			}
			ids := d.index[key]
			if len(ids) > 0 && ids[len(ids)-1] == i {
				continue
			}
			d.index[key] = append(ids, i)
		}
	}
	d.keys = make([]string, 0, len(d.index))
	for k := range d.index {
		d.keys = append(d.keys, k)
	}
	sort.Strings(d.keys)
	return d
}

// LoadJSONL reads one DictionaryEntry object per line. Blank lines are
// skipped.
func LoadJSONL(path string, fuzzy bool) (*MemoryDictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary %s: %w", path, err)
	}
	defer f.Close()

	var entries []annotation.DictionaryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e annotation.DictionaryEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("dictionary %s line %d: %w", path, line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary %s: %w", path, err)
	}
	return NewMemoryDictionary(entries, fuzzy), nil
}

// Len returns the number of entries.
func (d *MemoryDictionary) Len() int { return len(d.data) }

// Lookup returns up to limit entries for term.
func (d *MemoryDictionary) Lookup(_ context.Context, term string, limit int) ([]annotation.DictionaryEntry, error) {
	if term == "" || limit <= 0 {
		return nil, nil
	}

	ids := d.index[term]
	if len(ids) == 0 && d.fuzzy {
		ids = d.prefixIDs(term, limit)
	}

	out := make([]annotation.DictionaryEntry, 0, min(len(ids), limit))
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		out = append(out, d.data[id])
	}
	return out, nil
}

func (d *MemoryDictionary) prefixIDs(prefix string, limit int) []int {
	var ids []int
	seen := make(map[int]bool)
	for i := sort.SearchStrings(d.keys, prefix); i < len(d.keys); i++ {
		if !strings.HasPrefix(d.keys[i], prefix) {
			break
		}
		for _, id := range d.index[d.keys[i]] {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			if len(ids) == limit {
				return ids
			}
		}
	}
	return ids
}
