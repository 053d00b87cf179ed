// Package notation holds a typed model of a symbolic music score, a MusicXML
// reader that builds it, the analysis functions run over it, and a MIDI
// writer.
package notation

import "fmt"

// Document is a parsed score: Document → Part → Measure → Element.
type Document struct {
	Title         string
	MovementTitle string
	Composer      string
	Parts         []*Part
}

// Part is one instrument line of the score.
type Part struct {
	ID       string
	Name     string
	Measures []*Measure
}

// Measure holds its elements in source order. Offsets are in quarter notes
// from the start of the measure.
type Measure struct {
	Number   string
	Key      *KeySignature
	Time     *TimeSignature
	Elements []Element
	Length   float64
}

// Element is implemented by every node that can live inside a measure.
type Element interface {
	Offset() float64
	element()
}

// Pitch is a spelled pitch. Alter is in semitones (-1 flat, +1 sharp).
type Pitch struct {
	Step   string
	Alter  int
	Octave int
}

var stepSemitones = map[string]int{"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11}

// MIDI returns the MIDI note number, middle C (C4) being 60.
func (p Pitch) MIDI() int {
	return (p.Octave+1)*12 + stepSemitones[p.Step] + p.Alter
}

// PitchClass returns MIDI() mod 12 in 0..11.
func (p Pitch) PitchClass() int {
	return ((p.MIDI() % 12) + 12) % 12
}

func (p Pitch) String() string {
	acc := ""
	switch {
	case p.Alter > 0:
		for i := 0; i < p.Alter; i++ {
			acc += "#"
		}
	case p.Alter < 0:
		for i := 0; i < -p.Alter; i++ {
			acc += "b"
		}
	}
	return fmt.Sprintf("%s%s%d", p.Step, acc, p.Octave)
}

// Note is a single sounding pitch.
type Note struct {
	Pitch    Pitch
	Duration float64 // quarter lengths
	At       float64
}

// Chord is several pitches struck together.
type Chord struct {
	Pitches  []Pitch
	Duration float64
	At       float64
}

// Rest is silence, or an unpitched event, of the given length.
type Rest struct {
	Duration float64
	At       float64
}

// Dynamic is a dynamic marking such as "p" or "mf".
type Dynamic struct {
	Value string
	At    float64
}

// Expression is free text attached to the score ("dolce", "rit.").
type Expression struct {
	Text string
	At   float64
}

// MetronomeMark is a tempo indication in beats per minute.
type MetronomeMark struct {
	BPM      float64
	BeatUnit string
	At       float64
}

// KeySignature is expressed in circle-of-fifths position.
type KeySignature struct {
	Fifths int
	Mode   string
}

// TimeSignature is a meter such as 3/4.
type TimeSignature struct {
	Beats    int
	BeatType int
}

func (t TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", t.Beats, t.BeatType)
}

// QuarterLength is the nominal length of a full measure in this meter.
func (t TimeSignature) QuarterLength() float64 {
	if t.BeatType == 0 {
		return 0
	}
	return float64(t.Beats) * 4 / float64(t.BeatType)
}

func (n *Note) Offset() float64          { return n.At }
func (c *Chord) Offset() float64         { return c.At }
func (r *Rest) Offset() float64          { return r.At }
func (d *Dynamic) Offset() float64       { return d.At }
func (e *Expression) Offset() float64    { return e.At }
func (m *MetronomeMark) Offset() float64 { return m.At }

func (*Note) element()          {}
func (*Chord) element()         {}
func (*Rest) element()          {}
func (*Dynamic) element()       {}
func (*Expression) element()    {}
func (*MetronomeMark) element() {}

// Notes returns the single notes of the measure in source order.
func (m *Measure) Notes() []*Note {
	var out []*Note
	for _, e := range m.Elements {
		if n, ok := e.(*Note); ok {
			out = append(out, n)
		}
	}
	return out
}

// Chords returns the chords of the measure in source order.
func (m *Measure) Chords() []*Chord {
	var out []*Chord
	for _, e := range m.Elements {
		if c, ok := e.(*Chord); ok {
			out = append(out, c)
		}
	}
	return out
}

// Notes returns every single note of the part in measure order.
func (p *Part) Notes() []*Note {
	var out []*Note
	for _, m := range p.Measures {
		out = append(out, m.Notes()...)
	}
	return out
}

// MetronomeMarks returns the tempo marks of the part in measure order.
func (p *Part) MetronomeMarks() []*MetronomeMark {
	var out []*MetronomeMark
	for _, m := range p.Measures {
		for _, e := range m.Elements {
			if mm, ok := e.(*MetronomeMark); ok {
				out = append(out, mm)
			}
		}
	}
	return out
}

// Notes returns every single note in document order: part by part, then
// measure by measure. This is traversal order, not time order.
func (d *Document) Notes() []*Note {
	var out []*Note
	for _, p := range d.Parts {
		out = append(out, p.Notes()...)
	}
	return out
}

// Walk visits every element in document order.
func (d *Document) Walk(fn func(p *Part, m *Measure, e Element)) {
	for _, p := range d.Parts {
		for _, m := range p.Measures {
			for _, e := range m.Elements {
				fn(p, m, e)
			}
		}
	}
}
