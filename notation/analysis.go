package notation

import (
	"github.com/Gandorini/S-T-Station/model"
)

// Contour steps.
const (
	ContourStart = "start"
	ContourUp    = "up"
	ContourDown  = "down"
	ContourSame  = "same"
)

const (
	defaultTitle    = "Untitled"
	defaultComposer = "Unknown composer"
	unknown         = "Unknown"
)

// MelodyContour compares each note to the note before it in document order.
// Notes in different parts are compared across the part boundary.
func MelodyContour(doc *Document) []string {
	notes := doc.Notes()
	contour := make([]string, 0, len(notes))
	for i, n := range notes {
		if i == 0 {
			contour = append(contour, ContourStart)
			continue
		}
		prev := notes[i-1].Pitch.MIDI()
		switch cur := n.Pitch.MIDI(); {
		case cur > prev:
			contour = append(contour, ContourUp)
		case cur < prev:
			contour = append(contour, ContourDown)
		default:
			contour = append(contour, ContourSame)
		}
	}
	return contour
}

// RhythmComplexity is the population variance of note durations in quarter lengths.
func RhythmComplexity(doc *Document) float64 {
	notes := doc.Notes()
	if len(notes) == 0 {
		return 0
	}
	durations := make([]float64, len(notes))
	for i, n := range notes {
		durations[i] = n.Duration
	}
	return variance(durations)
}

// HarmonicComplexity is the mean pitch count of the first chord of every
// measure that contains one. Measures without chords do not count.
func HarmonicComplexity(doc *Document) float64 {
	var sum, n int
	for _, p := range doc.Parts {
		for _, m := range p.Measures {
			chords := m.Chords()
			if len(chords) == 0 {
				continue
			}
			sum += len(chords[0].Pitches)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// PitchRange is the widest max-min MIDI span found within any single part.
func PitchRange(doc *Document) int {
	widest := 0
	for _, p := range doc.Parts {
		notes := p.Notes()
		if len(notes) == 0 {
			continue
		}
		lo, hi := notes[0].Pitch.MIDI(), notes[0].Pitch.MIDI()
		for _, n := range notes[1:] {
			v := n.Pitch.MIDI()
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi-lo > widest {
			widest = hi - lo
		}
	}
	return widest
}

// Tempo returns the first metronome mark in document order, or 0.
func Tempo(doc *Document) float64 {
	for _, p := range doc.Parts {
		if marks := p.MetronomeMarks(); len(marks) > 0 {
			return marks[0].BPM
		}
	}
	return 0
}

// TechnicalDifficulty combines rhythm, harmony, range and tempo into [0,1].
func TechnicalDifficulty(doc *Document) float64 {
	score := 0.3*RhythmComplexity(doc) +
		0.3*HarmonicComplexity(doc) +
		0.2*(float64(PitchRange(doc))/12) +
		0.2*(Tempo(doc)/200)
	return clamp01(score)
}

// ExpressionMarkers returns the distinct dynamic and expression texts in
// first-seen order.
func ExpressionMarkers(doc *Document) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	doc.Walk(func(_ *Part, _ *Measure, e Element) {
		switch v := e.(type) {
		case *Dynamic:
			add(v.Value)
		case *Expression:
			add(v.Text)
		}
	})
	return out
}

// TimeSignature returns the first meter in the document.
func (d *Document) TimeSignature() (TimeSignature, bool) {
	for _, p := range d.Parts {
		for _, m := range p.Measures {
			if m.Time != nil {
				return *m.Time, true
			}
		}
	}
	return TimeSignature{}, false
}

// KeySignature returns the first declared key in the document.
func (d *Document) KeySignature() (KeySignature, bool) {
	for _, p := range d.Parts {
		for _, m := range p.Measures {
			if m.Key != nil {
				return *m.Key, true
			}
		}
	}
	return KeySignature{}, false
}

// MeasureCount is the number of measures in the longest part.
func (d *Document) MeasureCount() int {
	n := 0
	for _, p := range d.Parts {
		if len(p.Measures) > n {
			n = len(p.Measures)
		}
	}
	return n
}

// ExtractMetadata computes the descriptive and analytical attributes of doc.
func ExtractMetadata(doc *Document) model.SheetMetadata {
	md := model.SheetMetadata{
		Title:               doc.Title,
		Composer:            doc.Composer,
		Key:                 unknown,
		TimeSignature:       unknown,
		Measures:            doc.MeasureCount(),
		MelodyContour:       MelodyContour(doc),
		RhythmComplexity:    RhythmComplexity(doc),
		HarmonicComplexity:  HarmonicComplexity(doc),
		TechnicalDifficulty: TechnicalDifficulty(doc),
		ExpressionMarkers:   ExpressionMarkers(doc),
		Tempo:               Tempo(doc),
	}
	if md.Title == "" {
		md.Title = doc.MovementTitle
	}
	if md.Title == "" {
		md.Title = defaultTitle
	}
	if md.Composer == "" {
		md.Composer = defaultComposer
	}
	if ts, ok := doc.TimeSignature(); ok {
		md.TimeSignature = ts.String()
	}
	if ks, ok := doc.KeySignature(); ok {
		md.Key = ks.String()
	} else if k, ok := EstimateKey(doc); ok {
		md.Key = k.String()
	}
	return md
}

func variance(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return ss / float64(len(xs))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
