package validation

import (
	"regexp"
	"strings"
	"unicode"
)

// MinTabLines is the number of tablature lines needed before tab counts as notation.
const MinTabLines = 3

var (
	chordPattern = regexp.MustCompile(`\b[A-G][#b]?m?(maj7|m7|7|sus4|sus2|dim|aug|add9)?(/[A-G][#b]?)?\b`)
	tabPattern   = regexp.MustCompile(`^[eBGDAE]\|[-0-9hp/\\bxo]+$`)
	meterPattern = regexp.MustCompile(`(?i)\b(4/4|3/4|2/4|6/8|12/8|C|clave|G clef|F clef|treble|bass)\b`)

	musicGlyphs = &unicode.RangeTable{
		R16: []unicode.Range16{{Lo: 0x2669, Hi: 0x266F, Stride: 1}},
		R32: []unicode.Range32{{Lo: 0x1D100, Hi: 0x1D1FF, Stride: 1}},
	}
)

// Signals counts the notation indicators found in a text.
type Signals struct {
	ChordSymbols  int
	TabLines      int
	MusicGlyphs   int
	MeterKeywords int
}

// Matched reports whether any of the four tests passes.
func (s Signals) Matched() bool {
	return s.ChordSymbols > 0 ||
		s.TabLines >= MinTabLines ||
		s.MusicGlyphs > 0 ||
		s.MeterKeywords > 0
}

// DetectSignals runs every text test and keeps the hit counts.
func DetectSignals(text string) Signals {
	var s Signals
	s.ChordSymbols = len(chordPattern.FindAllStringIndex(text, -1))
	s.MeterKeywords = len(meterPattern.FindAllStringIndex(text, -1))

	for _, line := range strings.Split(text, "\n") {
		if tabPattern.MatchString(strings.TrimSpace(line)) {
			s.TabLines++
		}
	}
	for _, r := range text {
		if unicode.Is(musicGlyphs, r) {
			s.MusicGlyphs++
		}
	}
	return s
}

// LooksLikeNotation reports whether text resembles a score, chord chart or
// tablature. Empty text is never notation.
func LooksLikeNotation(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return DetectSignals(text).Matched()
}
