package deck

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/slidesage/pkg/file"
)

// DefaultWriter writes manifests in the format of the target extension
type DefaultWriter struct{}

func NewWriter() Writer {
	return &DefaultWriter{}
}

func (w *DefaultWriter) Write(path string, d *Deck) error {
	if d == nil {
		return fmt.Errorf("deck data is empty")
	}

	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		err = enc.Encode(d)
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(d)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to encode deck: %w", err)
	}

	if err := file.WriteAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	return nil
}
