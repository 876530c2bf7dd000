/**
 * Annotation Enricher - tokens, furigana and glosses for one OCR span
 *
 * Steps per span:
 * 1. NFKC normalization (only when rune offsets survive it)
 * 2. Segmentation with gap filling, so tokens cover the text exactly
 * 3. Reading normalized to hiragana
 * 4. Dictionary lookup by surface, then by lemma
 * 5. Proportional sub-box per token
 */

package enrich

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
	"github.com/adverant/nexus/furigana-worker/internal/recognition"
)

// Enricher turns RawSpans into Tokens
type Enricher struct {
	tokenizer   Tokenizer
	dictionary  Dictionary
	searchLimit int
	logger      *logging.Logger
}

// NewEnricher creates an enricher. A nil dictionary never yields glosses.
func NewEnricher(tok Tokenizer, dict Dictionary, searchLimit int) *Enricher {
	if dict == nil {
		dict = NoopDictionary{}
	}
	if searchLimit < 1 {
		searchLimit = 1
	}
	return &Enricher{
		tokenizer:   tok,
		dictionary:  dict,
		searchLimit: searchLimit,
		logger:      logging.NewLogger("Enricher"),
	}
}

// Enrich segments one span. Errors mean the whole span is unusable; a
// failed dictionary lookup only leaves that token without a gloss.
func (e *Enricher) Enrich(ctx context.Context, span recognition.RawSpan) (tokens []annotation.Token, err error) {
	if span.Box.Empty() {
		return nil, fmt.Errorf("span box %s has no area", span.Box)
	}

	text := normalize(span.Text)
	if strings.TrimSpace(text) == "" {
		return []annotation.Token{}, nil
	}

	morphemes, err := e.tokenize(text)
	if err != nil {
		return nil, err
	}

	pieces := align(text, morphemes)
	weights := make([]int, len(pieces))
	for i, p := range pieces {
		weights[i] = visibleRunes(p.Surface)
	}
	boxes := splitBox(span.Box, weights)

	tokens = make([]annotation.Token, 0, len(pieces))
	for i, p := range pieces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok := annotation.Token{
			Surface:      p.Surface,
			Reading:      furigana(p.Surface, p.Reading),
			Lemma:        p.BaseForm,
			PartOfSpeech: p.PartOfSpeech,
			Start:        p.start,
			End:          p.end,
			Box:          boxes[i],
		}

		if isLexical(p.Surface) {
			tok.Entries = e.lookup(ctx, p.Surface, p.BaseForm)
			if len(tok.Entries) > 0 {
				gloss := tok.Entries[0].FormatGloss()
				tok.Gloss = &gloss
			}
		}
		tokens = append(tokens, tok)
	}

	return tokens, nil
}

func (e *Enricher) tokenize(text string) (morphemes []Morpheme, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tokenizer panicked: %v", r)
		}
	}()
	morphemes, err = e.tokenizer.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}
	return morphemes, nil
}

// lookup queries by surface and falls back to the lemma.
func (e *Enricher) lookup(ctx context.Context, surface, lemma string) []annotation.DictionaryEntry {
	entries := e.query(ctx, surface)
	if len(entries) == 0 && lemma != "" && lemma != surface {
		entries = e.query(ctx, lemma)
	}
	if len(entries) > e.searchLimit {
		entries = entries[:e.searchLimit]
	}
	return entries
}

func (e *Enricher) query(ctx context.Context, term string) []annotation.DictionaryEntry {
	entries, err := e.dictionary.Lookup(ctx, term, e.searchLimit)
	if err != nil {
		e.logger.Warn("Dictionary lookup failed, treating as miss", "term", term, "error", err)
		return nil
	}
	return entries
}

// normalize applies NFKC when it keeps the rune count, which folds
// half-width katakana and full-width ASCII without moving offsets.
func normalize(text string) string {
	n := norm.NFKC.String(text)
	if utf8.RuneCountInString(n) != utf8.RuneCountInString(text) {
		return text
	}
	return n
}
