package notation

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported notation format")
	ErrNoRootFile        = errors.New("compressed MusicXML has no score file")
)

// Extensions produced by OMR engines for notation documents.
var Extensions = []string{".xml", ".musicxml", ".mxl"}

// IsNotationFile reports whether name has a notation document extension.
func IsNotationFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ParseFile reads a MusicXML (.xml, .musicxml) or compressed MusicXML (.mxl) file.
func ParseFile(name string) (*Document, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read notation file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(name), ".mxl") {
		return ParseMXL(data)
	}
	return Parse(bytes.NewReader(data))
}

// ParseMXL unpacks a compressed MusicXML archive and parses its root score.
func ParseMXL(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open mxl archive: %w", err)
	}

	root := ""
	for _, f := range zr.File {
		if f.Name != "META-INF/container.xml" {
			continue
		}
		var c struct {
			Rootfiles []struct {
				FullPath string `xml:"full-path,attr"`
			} `xml:"rootfiles>rootfile"`
		}
		if err := decodeZipXML(f, &c); err == nil && len(c.Rootfiles) > 0 {
			root = c.Rootfiles[0].FullPath
		}
		break
	}

	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		if root != "" && f.Name != root {
			continue
		}
		if root == "" && (!IsNotationFile(f.Name) || path.Ext(f.Name) == ".mxl") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		doc, err := Parse(rc)
		rc.Close()
		return doc, err
	}
	return nil, ErrNoRootFile
}

func decodeZipXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// Parse reads a partwise MusicXML document.
func Parse(r io.Reader) (*Document, error) {
	var raw xmlScore
	dec := xml.NewDecoder(r)
	dec.CharsetReader = passthroughCharset
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode musicxml: %w", err)
	}
	if raw.XMLName.Local != "score-partwise" {
		return nil, fmt.Errorf("%w: root element %q", ErrUnsupportedFormat, raw.XMLName.Local)
	}
	return raw.build(), nil
}

// passthroughCharset accepts documents that declare a non UTF-8 encoding;
// OMR output is ASCII in practice.
func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

type xmlScore struct {
	XMLName       xml.Name
	WorkTitle     string `xml:"work>work-title"`
	MovementTitle string `xml:"movement-title"`
	Creators      []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"identification>creator"`
	ScoreParts []struct {
		ID   string `xml:"id,attr"`
		Name string `xml:"part-name"`
	} `xml:"part-list>score-part"`
	Parts []struct {
		ID       string       `xml:"id,attr"`
		Measures []xmlMeasure `xml:"measure"`
	} `xml:"part"`
}

type xmlMeasure struct {
	Number string
	Items  []any
}

type xmlAttributes struct {
	Divisions float64 `xml:"divisions"`
	Keys      []struct {
		Fifths int    `xml:"fifths"`
		Mode   string `xml:"mode"`
	} `xml:"key"`
	Times []struct {
		Beats    string `xml:"beats"`
		BeatType string `xml:"beat-type"`
	} `xml:"time"`
}

type xmlNote struct {
	Chord    *struct{} `xml:"chord"`
	Grace    *struct{} `xml:"grace"`
	Rest     *struct{} `xml:"rest"`
	Pitch    *xmlPitch `xml:"pitch"`
	Duration float64   `xml:"duration"`
}

type xmlPitch struct {
	Step   string  `xml:"step"`
	Alter  float64 `xml:"alter"`
	Octave int     `xml:"octave"`
}

type xmlShift struct {
	Forward  bool    `xml:"-"`
	Duration float64 `xml:"duration"`
}

type xmlDirection struct {
	Types []struct {
		Dynamics *struct {
			Marks []struct {
				XMLName xml.Name
			} `xml:",any"`
			Other string `xml:"other-dynamics"`
		} `xml:"dynamics"`
		Words     []string `xml:"words"`
		Metronome *struct {
			BeatUnit  string `xml:"beat-unit"`
			PerMinute string `xml:"per-minute"`
		} `xml:"metronome"`
	} `xml:"direction-type"`
	Sound *xmlSound `xml:"sound"`
}

type xmlSound struct {
	Tempo string `xml:"tempo,attr"`
}

// UnmarshalXML keeps the measure's children in source order, which the
// offset bookkeeping (backup/forward, chord merging) depends on.
func (m *xmlMeasure) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if a.Name.Local == "number" {
			m.Number = a.Value
		}
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var item any
			switch t.Name.Local {
			case "attributes":
				item = &xmlAttributes{}
			case "note":
				item = &xmlNote{}
			case "backup", "forward":
				item = &xmlShift{Forward: t.Name.Local == "forward"}
			case "direction":
				item = &xmlDirection{}
			case "sound":
				item = &xmlSound{}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
				continue
			}
			if err := d.DecodeElement(item, &t); err != nil {
				return err
			}
			m.Items = append(m.Items, item)
		case xml.EndElement:
			return nil
		}
	}
}

func (s *xmlScore) build() *Document {
	doc := &Document{
		Title:         strings.TrimSpace(s.WorkTitle),
		MovementTitle: strings.TrimSpace(s.MovementTitle),
	}
	for _, c := range s.Creators {
		if strings.EqualFold(c.Type, "composer") {
			doc.Composer = strings.TrimSpace(c.Value)
			break
		}
	}

	names := make(map[string]string, len(s.ScoreParts))
	for _, sp := range s.ScoreParts {
		names[sp.ID] = strings.TrimSpace(sp.Name)
	}

	for _, rp := range s.Parts {
		part := &Part{ID: rp.ID, Name: names[rp.ID]}
		b := partBuilder{divisions: 1}
		for i := range rp.Measures {
			part.Measures = append(part.Measures, b.measure(&rp.Measures[i]))
		}
		doc.Parts = append(doc.Parts, part)
	}
	return doc
}

// partBuilder carries state that persists across measures of one part.
type partBuilder struct {
	divisions float64
	time      *TimeSignature
}

func (b *partBuilder) quarters(duration float64) float64 {
	return duration / b.divisions
}

func (b *partBuilder) measure(raw *xmlMeasure) *Measure {
	m := &Measure{Number: raw.Number}
	var cursor, furthest float64
	lastSounding := -1

	advance := func(d float64) {
		cursor += d
		if cursor < 0 {
			cursor = 0
		}
		furthest = math.Max(furthest, cursor)
	}

	for _, item := range raw.Items {
		switch v := item.(type) {
		case *xmlAttributes:
			if v.Divisions > 0 {
				b.divisions = v.Divisions
			}
			if len(v.Keys) > 0 && m.Key == nil {
				m.Key = &KeySignature{Fifths: v.Keys[0].Fifths, Mode: strings.ToLower(strings.TrimSpace(v.Keys[0].Mode))}
			}
			if len(v.Times) > 0 && m.Time == nil {
				if ts, ok := parseTime(v.Times[0].Beats, v.Times[0].BeatType); ok {
					m.Time = &ts
					b.time = &ts
				}
			}

		case *xmlNote:
			dur := b.quarters(v.Duration)
			if v.Grace != nil {
				dur = 0
			}
			if v.Rest != nil || v.Pitch == nil {
				if v.Chord == nil {
					m.Elements = append(m.Elements, &Rest{Duration: dur, At: cursor})
					advance(dur)
				}
				continue
			}
			p := Pitch{Step: strings.ToUpper(strings.TrimSpace(v.Pitch.Step)), Alter: int(math.Round(v.Pitch.Alter)), Octave: v.Pitch.Octave}

			if v.Chord != nil && lastSounding >= 0 {
				switch prev := m.Elements[lastSounding].(type) {
				case *Note:
					m.Elements[lastSounding] = &Chord{Pitches: []Pitch{prev.Pitch, p}, Duration: prev.Duration, At: prev.At}
				case *Chord:
					prev.Pitches = append(prev.Pitches, p)
				}
				continue
			}

			m.Elements = append(m.Elements, &Note{Pitch: p, Duration: dur, At: cursor})
			lastSounding = len(m.Elements) - 1
			advance(dur)

		case *xmlShift:
			d := b.quarters(v.Duration)
			if v.Forward {
				advance(d)
			} else {
				advance(-d)
			}

		case *xmlDirection:
			hasMetronome := false
			for _, dt := range v.Types {
				if dt.Dynamics != nil {
					for _, mark := range dt.Dynamics.Marks {
						m.Elements = append(m.Elements, &Dynamic{Value: mark.XMLName.Local, At: cursor})
					}
					if other := strings.TrimSpace(dt.Dynamics.Other); other != "" {
						m.Elements = append(m.Elements, &Dynamic{Value: other, At: cursor})
					}
				}
				for _, w := range dt.Words {
					if w = strings.TrimSpace(w); w != "" {
						m.Elements = append(m.Elements, &Expression{Text: w, At: cursor})
					}
				}
				if dt.Metronome != nil {
					if bpm, ok := leadingNumber(dt.Metronome.PerMinute); ok {
						m.Elements = append(m.Elements, &MetronomeMark{BPM: bpm, BeatUnit: dt.Metronome.BeatUnit, At: cursor})
						hasMetronome = true
					}
				}
			}
			if !hasMetronome && v.Sound != nil {
				if bpm, ok := leadingNumber(v.Sound.Tempo); ok {
					m.Elements = append(m.Elements, &MetronomeMark{BPM: bpm, BeatUnit: "quarter", At: cursor})
				}
			}

		case *xmlSound:
			if bpm, ok := leadingNumber(v.Tempo); ok {
				m.Elements = append(m.Elements, &MetronomeMark{BPM: bpm, BeatUnit: "quarter", At: cursor})
			}
		}
	}

	m.Length = furthest
	if m.Length == 0 && b.time != nil {
		m.Length = b.time.QuarterLength()
	}
	return m
}

func parseTime(beats, beatType string) (TimeSignature, bool) {
	// Compound numerators such as "3+2" are summed.
	total := 0
	for _, part := range strings.Split(beats, "+") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return TimeSignature{}, false
		}
		total += n
	}
	bt, err := strconv.Atoi(strings.TrimSpace(beatType))
	if err != nil || total <= 0 || bt <= 0 {
		return TimeSignature{}, false
	}
	return TimeSignature{Beats: total, BeatType: bt}, true
}

// leadingNumber parses the first decimal number in s ("c. 120" -> 120).
func leadingNumber(s string) (float64, bool) {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && (s[end] == '.' || unicode.IsDigit(rune(s[end]))) {
		end++
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[start:end], "."), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
