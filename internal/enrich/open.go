package enrich

import (
	"context"
	"strings"

	"github.com/adverant/nexus/furigana-worker/internal/storage"
)

// OpenDictionary builds the dictionary named by source: empty for none, a
// postgres:// URL, or a path to a .jsonl export.
func OpenDictionary(ctx context.Context, source string, fuzzy bool) (Dictionary, func() error, error) {
	noop := func() error { return nil }

	switch {
	case source == "":
		return NoopDictionary{}, noop, nil
	case strings.HasPrefix(source, "postgres://"), strings.HasPrefix(source, "postgresql://"):
		pg, err := storage.NewPostgresDictionary(ctx, source, fuzzy)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		mem, err := LoadJSONL(source, fuzzy)
		if err != nil {
			return nil, nil, err
		}
		return mem, noop, nil
	}
}
