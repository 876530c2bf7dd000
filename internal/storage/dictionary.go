package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
)

// PostgresDictionary looks terms up in furigana.dictionary_entries
type PostgresDictionary struct {
	client *PostgresClient
	fuzzy  bool
}

// NewPostgresDictionary connects to databaseURL. With fuzzy set, a term with
// no exact match falls back to a prefix search.
func NewPostgresDictionary(ctx context.Context, databaseURL string, fuzzy bool) (*PostgresDictionary, error) {
	client, err := NewPostgresClient(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	return &PostgresDictionary{client: client, fuzzy: fuzzy}, nil
}

const exactLookup = `
	SELECT expression, reading, senses
	FROM furigana.dictionary_entries
	WHERE expression = $1 OR reading = $1
	ORDER BY (expression = $1) DESC, priority DESC, id
	LIMIT $2
`

const prefixLookup = `
	SELECT expression, reading, senses
	FROM furigana.dictionary_entries
	WHERE expression LIKE $1 ESCAPE '\' OR reading LIKE $1 ESCAPE '\'
	ORDER BY length(expression), priority DESC, id
	LIMIT $2
`

// Lookup returns up to limit entries for term.
func (d *PostgresDictionary) Lookup(ctx context.Context, term string, limit int) ([]annotation.DictionaryEntry, error) {
	if term == "" || limit <= 0 {
		return nil, nil
	}

	entries, err := d.query(ctx, exactLookup, term, limit)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 || !d.fuzzy {
		return entries, nil
	}
	return d.query(ctx, prefixLookup, likePrefix(term), limit)
}

func (d *PostgresDictionary) query(ctx context.Context, query, arg string, limit int) ([]annotation.DictionaryEntry, error) {
	rows, err := d.client.db.QueryContext(ctx, query, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("dictionary lookup failed for %q: %w", arg, err)
	}
	defer rows.Close()

	var entries []annotation.DictionaryEntry
	for rows.Next() {
		var (
			e      annotation.DictionaryEntry
			senses pq.StringArray
		)
		if err := rows.Scan(&e.Expression, &e.Reading, &senses); err != nil {
			return nil, fmt.Errorf("failed to scan dictionary entry: %w", err)
		}
		e.Senses = []string(senses)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// likePrefix escapes LIKE metacharacters in term and appends a wildcard.
func likePrefix(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term) + "%"
}

// Close closes the connection pool.
func (d *PostgresDictionary) Close() error {
	return d.client.Close()
}
