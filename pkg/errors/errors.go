package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents navigation and fetch failures on a single page
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents markup or file parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeExtraction represents a page that yielded no usable record
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeBackground represents failures reading background responses
	ErrorTypeBackground ErrorType = "background"
	// ErrorTypeStorage represents snapshot and output file errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeSetup represents failures starting the browser or preparing outputs
	ErrorTypeSetup ErrorType = "setup"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents an error raised while running an inventory crawl
type CrawlerError struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error must abort the run. Page level errors
// are recovered by skipping the page.
func (e *CrawlerError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeSetup, ErrorTypeConfiguration, ErrorTypeStorage:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err wraps a fatal CrawlerError
func IsFatal(err error) bool {
	var ce *CrawlerError
	if errors.As(err, &ce) {
		return ce.IsFatal()
	}
	return false
}

// New creates a new CrawlerError
func New(errType ErrorType, provider, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, provider, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, provider, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(provider, message string) *CrawlerError {
	return New(ErrorTypeExtraction, provider, message, nil)
}

// NewBackground creates a new background response error
func NewBackground(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeBackground, provider, message, err)
}

// NewStorage creates a new storage error
func NewStorage(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeStorage, provider, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, provider, message, err)
}

// NewSetup creates a new setup error
func NewSetup(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeSetup, provider, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}
