package notation

import "math"

// Key is a tonal center with a mode.
type Key struct {
	Tonic int // pitch class 0..11
	Minor bool
}

var (
	majorNames = [12]string{"C", "C#", "D", "Eb", "E", "F", "F#", "G", "Ab", "A", "Bb", "B"}
	minorNames = [12]string{"c", "c#", "d", "eb", "e", "f", "f#", "g", "g#", "a", "bb", "b"}

	// Circle-of-fifths spellings for key signatures, index = fifths+7.
	majorByFifths = [15]string{"Cb", "Gb", "Db", "Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B", "F#", "C#"}
	minorByFifths = [15]string{"ab", "eb", "bb", "f", "c", "g", "d", "a", "e", "b", "f#", "c#", "g#", "d#", "a#"}

	// Krumhansl-Kessler probe-tone profiles.
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

func (k Key) String() string {
	if k.Minor {
		return minorNames[k.Tonic] + " minor"
	}
	return majorNames[k.Tonic] + " major"
}

func (k KeySignature) String() string {
	idx := k.Fifths + 7
	if idx < 0 || idx >= len(majorByFifths) {
		return unknown
	}
	if k.Mode == "minor" {
		return minorByFifths[idx] + " minor"
	}
	return majorByFifths[idx] + " major"
}

// EstimateKey runs Krumhansl-Schmuckler key finding over the duration-weighted
// pitch-class distribution of all notes and chords. Ties go to the first key
// tried (C major, then C minor, C# major, ...).
func EstimateKey(doc *Document) (Key, bool) {
	var hist [12]float64
	var total float64
	weight := func(d float64) float64 {
		// grace notes still count as an occurrence
		if d <= 0 {
			return 0.25
		}
		return d
	}
	doc.Walk(func(_ *Part, _ *Measure, e Element) {
		switch v := e.(type) {
		case *Note:
			w := weight(v.Duration)
			hist[v.Pitch.PitchClass()] += w
			total += w
		case *Chord:
			w := weight(v.Duration)
			for _, p := range v.Pitches {
				hist[p.PitchClass()] += w
				total += w
			}
		}
	})
	if total == 0 {
		return Key{}, false
	}

	best, bestScore := Key{}, math.Inf(-1)
	for tonic := 0; tonic < 12; tonic++ {
		for _, minor := range []bool{false, true} {
			profile := majorProfile
			if minor {
				profile = minorProfile
			}
			var rotated [12]float64
			for pc := 0; pc < 12; pc++ {
				rotated[pc] = profile[(pc-tonic+12)%12]
			}
			if r := correlation(hist[:], rotated[:]); r > bestScore {
				best, bestScore = Key{Tonic: tonic, Minor: minor}, r
			}
		}
	}
	return best, true
}

func correlation(a, b []float64) float64 {
	n := float64(len(a))
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= n
	mb /= n
	var cov, va, vb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}
