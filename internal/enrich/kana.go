package enrich

import (
	"strings"
	"unicode"
)

const (
	katakanaStart = 0x30A1 // ァ
	katakanaEnd   = 0x30F6 // ヶ
	kanaOffset    = 0x60   // ァ - ぁ
)

// ToHiragana converts katakana to hiragana. Other runes, including the
// prolonged sound mark, are left as they are.
func ToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= katakanaStart && r <= katakanaEnd {
			return r - kanaOffset
		}
		return r
	}, s)
}

func isKana(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana) || r == 'ー' || r == '・'
}

// IsKanaOnly reports whether every non-space rune of s is kana.
func IsKanaOnly(s string) bool {
	seen := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if !isKana(r) {
			return false
		}
		seen = true
	}
	return seen
}

// HasKanji reports whether s contains at least one Han character.
func HasKanji(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || r == '々' {
			return true
		}
	}
	return false
}

// HasJapanese reports whether s contains kana or kanji.
func HasJapanese(s string) bool {
	for _, r := range s {
		if isKana(r) || unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// isLexical reports whether s is worth a dictionary lookup.
func isLexical(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

// furigana picks the reading to draw above surface. Kana-only surfaces and
// surfaces with no Japanese need none.
func furigana(surface, tokenizerReading string) string {
	if !HasJapanese(surface) || IsKanaOnly(surface) {
		return ""
	}
	if tokenizerReading != "" && tokenizerReading != "*" {
		return ToHiragana(tokenizerReading)
	}
	derived := ToHiragana(surface)
	if IsKanaOnly(derived) {
		return derived
	}
	return ""
}
