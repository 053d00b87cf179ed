package model

// Verdict is the outcome of any validation strategy.
type Verdict struct {
	Valid    bool   `json:"valid"`
	Message  string `json:"message"`
	Evidence any    `json:"evidence,omitempty"`
}

// Prediction is one label returned by the image classifier.
type Prediction struct {
	Label       string  `json:"tag_name"`
	Probability float64 `json:"probability"`
}

// HeuristicEvidence records which text and image signals fired.
type HeuristicEvidence struct {
	ChordSymbols  int  `json:"chord_symbols"`
	TabLines      int  `json:"tab_lines"`
	MusicGlyphs   int  `json:"music_glyphs"`
	MeterKeywords int  `json:"meter_keywords"`
	TextMatched   bool `json:"text_matched"`
	StaffLines    int  `json:"staff_lines"`
	StaffDetected bool `json:"staff_detected"`
	TextLength    int  `json:"text_length"`
}

// ClassificationEvidence carries the classifier output behind a verdict.
type ClassificationEvidence struct {
	Best        *Prediction  `json:"prediction,omitempty"`
	Predictions []Prediction `json:"predictions,omitempty"`
}

// SheetMetadata is derived from a parsed notation document.
type SheetMetadata struct {
	Title               string   `json:"title"`
	Composer            string   `json:"composer"`
	Key                 string   `json:"key"`
	TimeSignature       string   `json:"time_signature"`
	Measures            int      `json:"measures"`
	MelodyContour       []string `json:"melody_contour,omitempty"`
	RhythmComplexity    float64  `json:"rhythm_complexity"`
	HarmonicComplexity  float64  `json:"harmonic_complexity"`
	TechnicalDifficulty float64  `json:"technical_difficulty"`
	ExpressionMarkers   []string `json:"expression_markers,omitempty"`
	Tempo               float64  `json:"tempo,omitempty"`
}

// ConversionResult is the outcome of validating a sheet and converting it
// to MusicXML and MIDI.
type ConversionResult struct {
	Valid    bool           `json:"valid"`
	Message  string         `json:"message"`
	MIDIURL  string         `json:"midi_url,omitempty"`
	XMLURL   string         `json:"xml_url,omitempty"`
	Metadata *SheetMetadata `json:"metadata,omitempty"`
	Detail   string         `json:"detail,omitempty"`
}
