package notes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MimeLyc/slidesage/internal/progress"
)

func TestSelector_Select(t *testing.T) {
	t.Parallel()

	fp := progress.Fingerprint("")
	baseline := progress.New(false)
	baseline.Put(progress.Key(1, fp), progress.Entry{SlideIndex: 1, Fingerprint: fp, Note: "Hello", Status: progress.StatusSuccess})
	baseline.Put(progress.Key(2, fp), progress.Entry{SlideIndex: 2, Fingerprint: fp, Status: progress.StatusError, Error: "boom"})
	baseline.Put(progress.Key(3, "deadbeef"), progress.Entry{SlideIndex: 3, Fingerprint: "deadbeef", Note: "Older", Status: progress.StatusSuccess})

	s := NewSelector("en", baseline)

	tests := []struct {
		name     string
		language string
		index    int
		want     Mode
	}{
		{name: "baseline always generates", language: "en", index: 1, want: Generate{}},
		{name: "baseline success translates", language: "fr", index: 1, want: Translate{SourceNote: "Hello", SourceLanguage: "en"}},
		{name: "baseline error generates", language: "fr", index: 2, want: Generate{}},
		{name: "same index other fingerprint translates", language: "fr", index: 3, want: Translate{SourceNote: "Older", SourceLanguage: "en"}},
		{name: "missing slide generates", language: "fr", index: 4, want: Generate{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Select(tt.language, tt.index, fp))
		})
	}
}

func TestSelector_NoBaselineLedger(t *testing.T) {
	t.Parallel()

	s := NewSelector("en", nil)
	for i := 1; i <= 5; i++ {
		assert.Equal(t, Generate{}, s.Select("ja", i, progress.Fingerprint("")))
	}
}

func TestSelector_IsPure(t *testing.T) {
	t.Parallel()

	fp := progress.Fingerprint("")
	baseline := progress.New(false)
	baseline.Put(progress.Key(1, fp), progress.Entry{SlideIndex: 1, Note: "Hello", Status: progress.StatusSuccess})
	s := NewSelector("en", baseline)

	first := s.Select("de", 1, fp)
	second := s.Select("de", 1, fp)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, baseline.Len())
}

func TestWriterMemo(t *testing.T) {
	t.Parallel()

	var memo WriterMemo
	_, ok := memo.Last()
	assert.False(t, ok)

	memo.Record("note")
	last, ok := memo.Last()
	assert.True(t, ok)
	assert.Equal(t, "note", last)

	memo.Reset()
	_, ok = memo.Last()
	assert.False(t, ok)

	var nilMemo *WriterMemo
	nilMemo.Record("x")
	_, ok = nilMemo.Last()
	assert.False(t, ok)
}
