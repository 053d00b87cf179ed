package notation

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"
)

type noteOn struct {
	channel, key, velocity uint8
	tick                   int64
}

func readNoteOns(t *testing.T, data []byte) (*smf.SMF, [][]noteOn) {
	t.Helper()
	s, err := smf.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)

	var tracks [][]noteOn
	for _, tr := range s.Tracks {
		var ons []noteOn
		var abs int64
		for _, ev := range tr {
			abs += int64(ev.Delta)
			var ch, key, vel uint8
			if ev.Message.GetNoteOn(&ch, &key, &vel) {
				ons = append(ons, noteOn{channel: ch, key: key, velocity: vel, tick: abs})
			}
		}
		tracks = append(tracks, ons)
	}
	return s, tracks
}

func TestWriteMIDI(t *testing.T) {
	doc := parseString(t, twoPartScore)

	var buf bytes.Buffer
	require.NoError(t, WriteMIDI(doc, &buf))

	s, tracks := readNoteOns(t, buf.Bytes())
	assert.Equal(t, smf.MetricTicks(TicksPerQuarter), s.TimeFormat)
	require.Len(t, tracks, 2)

	piano := tracks[0]
	// G4, B4+D5 chord, F#4, D4 (voice 2), G4
	require.Len(t, piano, 6)
	assert.Equal(t, noteOn{channel: 0, key: 67, velocity: 80, tick: 0}, piano[0])
	assert.Equal(t, int64(480), piano[1].tick)
	assert.Equal(t, int64(480), piano[2].tick)
	assert.ElementsMatch(t, []uint8{71, 74}, []uint8{piano[1].key, piano[2].key})

	// measure 2 starts after the 3/4 first measure
	assert.Equal(t, int64(1440), piano[3].tick)
	assert.Equal(t, int64(1440), piano[4].tick)
	assert.ElementsMatch(t, []uint8{66, 62}, []uint8{piano[3].key, piano[4].key})
	assert.Equal(t, int64(1680), piano[5].tick)

	bass := tracks[1]
	require.Len(t, bass, 1)
	assert.Equal(t, uint8(1), bass[0].channel)
	assert.Equal(t, uint8(43), bass[0].key)
}

func TestWriteMIDI_Tempo(t *testing.T) {
	doc := parseString(t, twoPartScore)
	var buf bytes.Buffer
	require.NoError(t, WriteMIDI(doc, &buf))

	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var bpm float64
	for _, ev := range s.Tracks[0] {
		if ev.Message.GetMetaTempo(&bpm) {
			break
		}
	}
	assert.InDelta(t, 96.0, bpm, 0.01)
}

func TestWriteMIDI_DefaultTempo(t *testing.T) {
	doc := singlePart(note("C", 4, 1, 0))
	var buf bytes.Buffer
	require.NoError(t, WriteMIDI(doc, &buf))

	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var bpm float64
	found := false
	for _, ev := range s.Tracks[0] {
		if ev.Message.GetMetaTempo(&bpm) {
			found = true
			break
		}
	}
	require.True(t, found)
	assert.InDelta(t, DefaultTempo, bpm, 0.01)
}

func TestWriteMIDI_DynamicsVelocity(t *testing.T) {
	doc := singlePart(
		&Dynamic{Value: "pp"},
		note("C", 4, 1, 0),
		&Dynamic{Value: "ff", At: 1},
		note("D", 4, 1, 1),
	)
	var buf bytes.Buffer
	require.NoError(t, WriteMIDI(doc, &buf))

	_, tracks := readNoteOns(t, buf.Bytes())
	require.Len(t, tracks[0], 2)
	assert.Equal(t, uint8(33), tracks[0][0].velocity)
	assert.Equal(t, uint8(112), tracks[0][1].velocity)
}

func TestWriteMIDI_NoParts(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteMIDI(&Document{}, &buf))
}

func TestWriteMIDIFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mid")
	require.NoError(t, WriteMIDIFile(parseString(t, twoPartScore), path))

	s, err := smf.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, s.Tracks, 2)
}

func TestPartChannel_SkipsDrums(t *testing.T) {
	assert.Equal(t, uint8(0), partChannel(0))
	assert.Equal(t, uint8(8), partChannel(8))
	assert.Equal(t, uint8(10), partChannel(9))
	assert.Equal(t, uint8(15), partChannel(14))
	assert.Equal(t, uint8(0), partChannel(15))
}
