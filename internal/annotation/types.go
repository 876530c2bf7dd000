/**
 * Annotation Types - positioned tokens produced by one capture cycle
 *
 * Tokens carry boxes relative to the captured image; Annotations carry the
 * same token translated into absolute screen coordinates.
 */

package annotation

import (
	"strings"
	"time"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// DictionaryEntry is one dictionary record returned for a lookup
type DictionaryEntry struct {
	Expression string   `json:"expression"`
	Reading    string   `json:"reading"`
	Senses     []string `json:"senses"`
}

// FormatGloss joins the senses into one display string.
func (e DictionaryEntry) FormatGloss() string {
	return strings.Join(e.Senses, "; ")
}

// Token is one lexical unit of a recognized span
type Token struct {
	Surface      string            `json:"surface"`
	Reading      string            `json:"reading"`
	Gloss        *string           `json:"gloss"`
	Lemma        string            `json:"lemma,omitempty"`
	PartOfSpeech string            `json:"partOfSpeech,omitempty"`
	Start        int               `json:"start"`
	End          int               `json:"end"`
	Box          geometry.Rect     `json:"box"`
	Entries      []DictionaryEntry `json:"entries,omitempty"`
}

// HasFurigana reports whether the token needs a reading drawn above it.
func (t Token) HasFurigana() bool { return t.Reading != "" }

// Annotation is a token positioned in screen space
type Annotation struct {
	Token
	Confidence float64 `json:"confidence"`
}

// NewAnnotation translates the token box by the region origin.
func NewAnnotation(tok Token, region geometry.Region, confidence float64) Annotation {
	tok.Box = region.ToAbsolute(tok.Box)
	return Annotation{Token: tok, Confidence: confidence}
}

// Set is the complete annotation result of one successful cycle
type Set struct {
	CycleID     uint64          `json:"cycleId"`
	SessionID   string          `json:"sessionId"`
	Timestamp   time.Time       `json:"timestamp"`
	Region      geometry.Region `json:"region"`
	Annotations []Annotation    `json:"annotations"`
}

// Empty returns the set that is current before the first publish.
func Empty(sessionID string) *Set {
	return &Set{SessionID: sessionID, Annotations: []Annotation{}}
}

// Len returns the number of annotations.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Annotations)
}

// Same reports whether s and o describe the same publish.
func (s *Set) Same(o *Set) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.CycleID == o.CycleID && s.SessionID == o.SessionID
}
