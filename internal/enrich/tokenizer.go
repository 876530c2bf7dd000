package enrich

import (
	"fmt"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Morpheme is one tokenizer output unit
type Morpheme struct {
	Surface      string
	Reading      string
	BaseForm     string
	PartOfSpeech string
}

// Tokenizer segments Japanese text
type Tokenizer interface {
	Tokenize(text string) ([]Morpheme, error)
}

// KagomeTokenizer segments with kagome and the IPA dictionary
type KagomeTokenizer struct {
	t *tokenizer.Tokenizer
}

// NewKagomeTokenizer loads the embedded IPA dictionary.
func NewKagomeTokenizer() (*KagomeTokenizer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("failed to create kagome tokenizer: %w", err)
	}
	return &KagomeTokenizer{t: t}, nil
}

// Tokenize runs normal-mode segmentation.
func (k *KagomeTokenizer) Tokenize(text string) ([]Morpheme, error) {
	tokens := k.t.Tokenize(text)
	out := make([]Morpheme, 0, len(tokens))
	for _, tok := range tokens {
		m := Morpheme{Surface: tok.Surface}
		if r, ok := tok.Reading(); ok && r != "*" {
			m.Reading = r
		}
		if b, ok := tok.BaseForm(); ok && b != "*" {
			m.BaseForm = b
		}
		if pos := tok.POS(); len(pos) > 0 && pos[0] != "*" {
			m.PartOfSpeech = pos[0]
		}
		out = append(out, m)
	}
	return out, nil
}
