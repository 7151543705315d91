package notes

import "fmt"

// Mode selects how a slide's note is produced.
// It is one of Generate, Translate or Fallback.
type Mode interface {
	isMode()
	String() string
}

// Generate runs the full audit, analyze and write sequence
type Generate struct{}

// Translate translates a reviewed baseline note
type Translate struct {
	SourceNote     string
	SourceLanguage string
}

// Fallback runs the full sequence after a failed translation
type Fallback struct {
	Cause error
}

func (Generate) isMode()  {}
func (Translate) isMode() {}
func (Fallback) isMode()  {}

func (Generate) String() string  { return "generate" }
func (Translate) String() string { return "translate" }
func (m Fallback) String() string {
	return fmt.Sprintf("fallback(%v)", m.Cause)
}
