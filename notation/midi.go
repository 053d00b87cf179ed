package notation

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	TicksPerQuarter = 480
	DefaultTempo    = 120.0
	defaultVelocity = 80
	drumChannel     = 9
)

var dynamicVelocity = map[string]uint8{
	"ppp": 16, "pp": 33, "p": 49, "mp": 64,
	"mf": 80, "f": 96, "ff": 112, "fff": 127,
	"sf": 112, "sfz": 112, "fp": 96,
}

type midiEvent struct {
	tick uint64
	off  bool
	key  uint8
	vel  uint8
}

// BuildMIDI converts doc to a type-1 Standard MIDI File with one track per part.
func BuildMIDI(doc *Document) (*smf.SMF, error) {
	if len(doc.Parts) == 0 {
		return nil, fmt.Errorf("notation document has no parts")
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	tempo := Tempo(doc)
	if tempo <= 0 {
		tempo = DefaultTempo
	}

	for i, part := range doc.Parts {
		var tr smf.Track
		if part.Name != "" {
			tr.Add(0, smf.MetaTrackSequenceName(part.Name))
		}
		if i == 0 {
			tr.Add(0, smf.MetaTempo(tempo))
			if ts, ok := doc.TimeSignature(); ok {
				tr.Add(0, smf.MetaMeter(uint8(ts.Beats), uint8(ts.BeatType)))
			}
		}

		ch := partChannel(i)
		var last uint64
		for _, ev := range partEvents(part) {
			delta := uint32(ev.tick - last)
			last = ev.tick
			if ev.off {
				tr.Add(delta, midi.NoteOff(ch, ev.key))
			} else {
				tr.Add(delta, midi.NoteOn(ch, ev.key, ev.vel))
			}
		}
		tr.Close(0)

		if err := s.Add(tr); err != nil {
			return nil, fmt.Errorf("add track %d: %w", i, err)
		}
	}
	return s, nil
}

// WriteMIDI encodes doc as a Standard MIDI File to w.
func WriteMIDI(doc *Document, w io.Writer) error {
	s, err := BuildMIDI(doc)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// WriteMIDIFile encodes doc to the file at path.
func WriteMIDIFile(doc *Document, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create midi file: %w", err)
	}
	if err := WriteMIDI(doc, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func partChannel(i int) uint8 {
	ch := i % 15
	if ch >= drumChannel {
		ch++
	}
	return uint8(ch)
}

func partEvents(part *Part) []midiEvent {
	var events []midiEvent
	var measureStart float64
	vel := uint8(defaultVelocity)

	emit := func(p Pitch, at, dur float64) {
		key := p.MIDI()
		if key < 0 || key > 127 || dur <= 0 {
			return
		}
		on := toTicks(measureStart + at)
		off := toTicks(measureStart + at + dur)
		events = append(events,
			midiEvent{tick: on, key: uint8(key), vel: vel},
			midiEvent{tick: off, off: true, key: uint8(key)},
		)
	}

	for _, m := range part.Measures {
		for _, e := range m.Elements {
			switch v := e.(type) {
			case *Dynamic:
				if dv, ok := dynamicVelocity[v.Value]; ok {
					vel = dv
				}
			case *Note:
				emit(v.Pitch, v.At, v.Duration)
			case *Chord:
				for _, p := range v.Pitches {
					emit(p, v.At, v.Duration)
				}
			}
		}
		measureStart += m.Length
	}

	// Note-offs sort before note-ons on the same tick so repeated pitches retrigger.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].off && !events[j].off
	})
	return events
}

func toTicks(quarters float64) uint64 {
	return uint64(math.Round(quarters * TicksPerQuarter))
}
