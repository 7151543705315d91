package deck

import "golang.org/x/text/language"

// Reader reads a deck manifest
type Reader interface {
	Read() (*Deck, error)
}

// Writer writes a deck manifest
type Writer interface {
	Write(path string, deck *Deck) error
}

// Slide is one slide of a deck
type Slide struct {
	Index  int    `json:"index" yaml:"index"`
	Notes  string `json:"notes" yaml:"notes"`
	Visual string `json:"visual,omitempty" yaml:"visual,omitempty"`
}

// Deck is a presentation manifest: an ordered list of slides with their speaker notes.
// The rendered slides live in a PDF next to it.
type Deck struct {
	Title    string  `json:"title,omitempty" yaml:"title,omitempty"`
	Language string  `json:"language,omitempty" yaml:"language,omitempty"`
	Slides   []Slide `json:"slides" yaml:"slides"`

	// NotesLanguage is detected from the existing notes; Und when there are none
	NotesLanguage language.Tag `json:"-" yaml:"-"`
	Format        string       `json:"-" yaml:"-"`
}

// Notes returns the notes of the 1-based slide index
func (d *Deck) Notes(index int) string {
	if index < 1 || index > len(d.Slides) {
		return ""
	}
	return d.Slides[index-1].Notes
}

// Clone returns a deep copy
func (d *Deck) Clone() *Deck {
	ret := *d
	ret.Slides = append([]Slide(nil), d.Slides...)
	return &ret
}
