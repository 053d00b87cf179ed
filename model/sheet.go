package model

import (
	"time"
)

// MusicSheet is a catalog entry owned by exactly one user
type MusicSheet struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Composer   string    `json:"composer"`
	Instrument string    `json:"instrument"`
	Difficulty string    `json:"difficulty"`
	Tags       []string  `json:"tags"`
	FileURL    string    `json:"file_url"`
	XMLURL     string    `json:"xml_url,omitempty"`
	MIDIURL    string    `json:"midi_url,omitempty"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MusicSheetInput is the writable part of a sheet. The owner always comes
// from the verified token, never from the body.
type MusicSheetInput struct {
	Title      string   `json:"title" binding:"required"`
	Composer   string   `json:"composer" binding:"required"`
	Instrument string   `json:"instrument" binding:"required"`
	Difficulty string   `json:"difficulty" binding:"required"`
	Tags       []string `json:"tags"`
	FileURL    string   `json:"file_url" binding:"required"`
	XMLURL     string   `json:"xml_url"`
	MIDIURL    string   `json:"midi_url"`
}

// Apply copies the input onto s.
func (in MusicSheetInput) Apply(s *MusicSheet) {
	s.Title = in.Title
	s.Composer = in.Composer
	s.Instrument = in.Instrument
	s.Difficulty = in.Difficulty
	s.Tags = append([]string(nil), in.Tags...)
	if s.Tags == nil {
		s.Tags = []string{}
	}
	s.FileURL = in.FileURL
	s.XMLURL = in.XMLURL
	s.MIDIURL = in.MIDIURL
}
