package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/slidesage/pkg/log"
)

type ErrorType int

const (
	ErrConfig ErrorType = iota
	ErrDeckRead
	ErrDeckWrite
	ErrRasterize
	ErrLedger
	ErrGeneration
	ErrTranslation
	ErrVisual
	ErrNetwork
	ErrUnknown
)

// SageError classifies a phase level failure
type SageError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *SageError {
	return &SageError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *SageError {
	return &SageError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *SageError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ctxParts []string
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *SageError) Unwrap() error {
	return e.Cause
}

func (e *SageError) WithContext(key string, value any) *SageError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrConfig:
		return "Config"
	case ErrDeckRead:
		return "DeckRead"
	case ErrDeckWrite:
		return "DeckWrite"
	case ErrRasterize:
		return "Rasterize"
	case ErrLedger:
		return "Ledger"
	case ErrGeneration:
		return "Generation"
	case ErrTranslation:
		return "Translation"
	case ErrVisual:
		return "Visual"
	case ErrNetwork:
		return "Network"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *SageError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice and reports whether it was a classified error
func (h *DefaultErrorHandler) Handle(err error) bool {
	var sageErr *SageError
	if !errors.As(err, &sageErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(sageErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *SageError) string {
	switch err.Type {
	case ErrConfig:
		return "Please check that the config file or environment variables are set correctly"
	case ErrDeckRead:
		return "Please check that the deck manifest exists and is valid JSON or YAML with slides numbered from 1"
	case ErrDeckWrite:
		return "Please ensure the output directory exists and has write permissions"
	case ErrRasterize:
		return "Please check that pdftoppm (poppler-utils) is installed and the PDF is readable"
	case ErrLedger:
		return "The progress file is unreadable; fix or delete it to start the language over"
	case ErrGeneration, ErrTranslation, ErrVisual:
		return "The model kept failing; run again with retry errors enabled to reprocess only failed slides"
	case ErrNetwork:
		return "Please check the API key, the API URL and network connectivity"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var sageErr *SageError
	if errors.As(err, &sageErr) {
		return sageErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *SageError {
	return NewErrorWithCause(errorType, message, err)
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
