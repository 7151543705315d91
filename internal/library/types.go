package library

import "time"

type SourceConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	DeckCount int    `json:"deck_count"`
}

// Deck is a manifest with its rendered PDF found under a source
type Deck struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	Name         string    `json:"name"`
	ManifestPath string    `json:"manifest_path"`
	PDFPath      string    `json:"pdf_path"`
	ModTime      time.Time `json:"mod_time"`

	// Done lists the requested languages that already have a notes output
	Done []string `json:"done"`
	// Pending lists the requested languages still to process
	Pending []string `json:"pending"`
}

type Library struct {
	Sources []Source `json:"sources"`
	Decks   []Deck   `json:"decks"`
}
