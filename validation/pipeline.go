// Package validation decides whether an uploaded PDF or image is sheet music
// or a chord chart, using optical music recognition, text heuristics, staff
// line detection or a remote image classifier.
package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Gandorini/S-T-Station/model"
	"github.com/Gandorini/S-T-Station/notation"
	"github.com/Gandorini/S-T-Station/pkg/logger"
)

// Verdict messages.
const (
	MsgNotationRecognized = "Valid sheet music: notation recognized"
	MsgNoNotation         = "No musical notation recognized"
	MsgConverted          = "Sheet validated and converted to MIDI"
	MsgParseFailed        = "Recognized notation could not be read"
	MsgMIDIFailed         = "MIDI conversion failed"
	MsgStorageFailed      = "Converted files could not be stored"
	MsgHeuristicMatch     = "Musical notation detected"
	MsgHeuristicNoMatch   = "No musical notation detected"
	MsgClassifiedSheet    = "Classified as sheet music or chord chart"
	MsgClassifiedOther    = "Not recognized as sheet music or chord chart"
	MsgNoPredictions      = "Classifier returned no predictions"
	MsgPDFNotProcessed    = "Could not process PDF"
	MsgImageNotReadable   = "Could not read image"
)

const (
	midiContentType     = "audio/midi"
	musicXMLContentType = "application/vnd.recordare.musicxml+xml"
	mxlContentType      = "application/vnd.recordare.musicxml"
)

// ObjectStore persists converted artifacts and returns their public URL.
type ObjectStore interface {
	Store(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

// Deps are the collaborators of a Pipeline. Nil collaborators disable the
// strategies that need them.
type Deps struct {
	OMR           Recognizer
	Text          TextExtractor
	Staff         StaffDetector
	Raster        *Rasterizer
	Classifier    Classifier
	AllowedLabels []string
	Store         ObjectStore
	XMLBucket     string
	MIDIBucket    string
	WorkspaceRoot string
}

// Pipeline runs the validation strategies, each inside its own workspace.
type Pipeline struct {
	d Deps
}

// NewPipeline creates a pipeline over d.
func NewPipeline(d Deps) *Pipeline {
	if len(d.AllowedLabels) == 0 {
		d.AllowedLabels = DefaultAllowedLabels
	}
	if d.XMLBucket == "" {
		d.XMLBucket = "music-sheets-xml"
	}
	if d.MIDIBucket == "" {
		d.MIDIBucket = "music-sheets-midi"
	}
	return &Pipeline{d: d}
}

// withWorkspace saves u into a fresh workspace, calls fn with its path and
// removes the workspace afterwards, whatever fn returned.
func (p *Pipeline) withWorkspace(ctx context.Context, u Upload, fn func(ws *Workspace, path string) error) error {
	if !u.scannable() {
		return fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(u.Filename))
	}
	ws, err := NewWorkspace(p.d.WorkspaceRoot)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			logger.Warn(ctx, "workspace cleanup failed", "dir", ws.Dir, "error", err)
		}
	}()

	path, err := ws.Save(u)
	if err != nil {
		return err
	}
	return fn(ws, path)
}

func (p *Pipeline) requireOMR() error {
	if p.d.OMR == nil {
		return &ConfigurationError{Missing: []string{"omr"}}
	}
	return nil
}

// ValidateSheet accepts the upload iff the recognizer produces a notation file.
func (p *Pipeline) ValidateSheet(ctx context.Context, u Upload) (model.Verdict, error) {
	if err := p.requireOMR(); err != nil {
		return model.Verdict{}, err
	}
	var v model.Verdict
	err := p.withWorkspace(ctx, u, func(_ *Workspace, path string) error {
		res, err := p.d.OMR.Recognize(ctx, path)
		if err != nil {
			return err
		}
		if res.XMLPath == "" {
			v = model.Verdict{Valid: false, Message: MsgNoNotation}
			return nil
		}
		v = model.Verdict{Valid: true, Message: MsgNotationRecognized}
		return nil
	})
	return v, err
}

// ValidateAndConvert recognizes the upload, converts the notation to MIDI,
// stores both files and extracts metadata. Anything failing after a
// successful recognition yields valid=false with a detail, not an error.
func (p *Pipeline) ValidateAndConvert(ctx context.Context, u Upload) (model.ConversionResult, error) {
	if err := p.requireOMR(); err != nil {
		return model.ConversionResult{}, err
	}
	if p.d.Store == nil {
		return model.ConversionResult{}, &ConfigurationError{Missing: []string{"minio.endpoint"}}
	}

	var out model.ConversionResult
	err := p.withWorkspace(ctx, u, func(_ *Workspace, path string) error {
		res, err := p.d.OMR.Recognize(ctx, path)
		if err != nil {
			return err
		}
		if res.XMLPath == "" {
			out = model.ConversionResult{Valid: false, Message: MsgNoNotation}
			return nil
		}
		out = p.convert(ctx, u, res.XMLPath)
		return nil
	})
	return out, err
}

func (p *Pipeline) convert(ctx context.Context, u Upload, xmlPath string) model.ConversionResult {
	soft := func(msg string, err error) model.ConversionResult {
		logger.Warn(ctx, "conversion failed", "stage", msg, "error", err)
		return model.ConversionResult{Valid: false, Message: msg, Detail: err.Error()}
	}

	doc, err := notation.ParseFile(xmlPath)
	if err != nil {
		return soft(MsgParseFailed, err)
	}
	var midi bytes.Buffer
	if err := notation.WriteMIDI(doc, &midi); err != nil {
		return soft(MsgMIDIFailed, err)
	}
	xmlData, err := os.ReadFile(xmlPath)
	if err != nil {
		return soft(MsgParseFailed, err)
	}

	// A per-request prefix keeps uploads with the same name from replacing each other.
	base := uuid.NewString()[:8] + "_" + strings.TrimSuffix(SafeName(u.Filename), filepath.Ext(SafeName(u.Filename)))
	xmlExt := strings.ToLower(filepath.Ext(xmlPath))
	xmlType := musicXMLContentType
	if xmlExt == ".mxl" {
		xmlType = mxlContentType
	}

	var xmlURL, midiURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := p.d.Store.Store(gctx, p.d.XMLBucket, base+xmlExt, xmlData, xmlType)
		xmlURL = url
		return err
	})
	g.Go(func() error {
		url, err := p.d.Store.Store(gctx, p.d.MIDIBucket, base+".mid", midi.Bytes(), midiContentType)
		midiURL = url
		return err
	})
	if err := g.Wait(); err != nil {
		return soft(MsgStorageFailed, err)
	}

	md := notation.ExtractMetadata(doc)
	return model.ConversionResult{
		Valid:    true,
		Message:  MsgConverted,
		MIDIURL:  midiURL,
		XMLURL:   xmlURL,
		Metadata: &md,
	}
}

// ValidateHeuristic combines text heuristics with staff-line detection. For
// PDFs the staff check runs on the first rendered page.
func (p *Pipeline) ValidateHeuristic(ctx context.Context, u Upload) (model.Verdict, error) {
	if p.d.Text == nil {
		return model.Verdict{}, &ConfigurationError{Missing: []string{"ocr"}}
	}
	var v model.Verdict
	err := p.withWorkspace(ctx, u, func(ws *Workspace, path string) error {
		kind := u.Kind()
		text := p.d.Text.ExtractText(ctx, path, kind)
		signals := DetectSignals(text)

		ev := model.HeuristicEvidence{
			ChordSymbols:  signals.ChordSymbols,
			TabLines:      signals.TabLines,
			MusicGlyphs:   signals.MusicGlyphs,
			MeterKeywords: signals.MeterKeywords,
			TextMatched:   LooksLikeNotation(text),
			TextLength:    len(text),
		}

		imgPath := path
		if kind == KindPDF {
			imgPath = ""
			if p.d.Raster != nil {
				if pg, err := p.d.Raster.FirstPage(ctx, path, ws.Dir); err == nil {
					imgPath = pg
				} else {
					logger.Debug(ctx, "staff check skipped", "error", err)
				}
			}
		}
		if imgPath != "" && p.d.Staff != nil {
			if n, ok := p.d.Staff.CountHorizontalLines(imgPath); ok {
				ev.StaffLines = n
				ev.StaffDetected = n >= MinStaffLines
			}
		}

		v = model.Verdict{Valid: ev.TextMatched || ev.StaffDetected, Message: MsgHeuristicNoMatch, Evidence: ev}
		if v.Valid {
			v.Message = MsgHeuristicMatch
		}
		return nil
	})
	return v, err
}

// ValidateDeep asks the image classifier and accepts the upload when the most
// probable label is an allowed one.
func (p *Pipeline) ValidateDeep(ctx context.Context, u Upload) (model.Verdict, error) {
	if p.d.Classifier == nil {
		return model.Verdict{}, &ConfigurationError{Missing: []string{"classifier"}}
	}
	var v model.Verdict
	err := p.withWorkspace(ctx, u, func(_ *Workspace, path string) error {
		preds, err := p.d.Classifier.Classify(ctx, path, u.Filename)
		if errors.Is(err, ErrNoPageImage) {
			v = model.Verdict{Valid: false, Message: MsgPDFNotProcessed}
			return nil
		}
		if errors.Is(err, ErrUnreadableImage) {
			logger.Warn(ctx, "classifier input not decodable", "file", u.Filename, "error", err)
			v = model.Verdict{Valid: false, Message: MsgImageNotReadable}
			return nil
		}
		if err != nil {
			return err
		}

		ev := model.ClassificationEvidence{Predictions: preds}
		best, ok := Accept(preds, p.d.AllowedLabels)
		ev.Best = best
		switch {
		case best == nil:
			v = model.Verdict{Valid: false, Message: MsgNoPredictions, Evidence: ev}
		case ok:
			v = model.Verdict{Valid: true, Message: MsgClassifiedSheet, Evidence: ev}
		default:
			v = model.Verdict{Valid: false, Message: MsgClassifiedOther, Evidence: ev}
		}
		return nil
	})
	return v, err
}
