package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/kalambet/designgen/internal/config"
	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/output"
	"github.com/kalambet/designgen/internal/storage"
)

// ExternalServiceError wraps a failed call to the inference engine or the
// generation provider.
type ExternalServiceError struct {
	Service   string
	Err       error
	transient bool
}

func external(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err, transient: isTransient(err)}
}

func (e *ExternalServiceError) Error() string { return fmt.Sprintf("%s: %v", e.Service, e.Err) }

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Transient reports whether a retry may succeed.
func (e *ExternalServiceError) Transient() bool { return e.transient }

func isTransient(err error) bool {
	var t interface{ Transient() bool }
	if errors.As(err, &t) {
		return t.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ErrorKind buckets errors for reporting.
type ErrorKind string

const (
	KindParse             ErrorKind = "parse"
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
	KindNoCandidate       ErrorKind = "no_candidate"
	KindExternalService   ErrorKind = "external_service"
	KindConfiguration     ErrorKind = "configuration"
	KindIO                ErrorKind = "io"
	KindDuplicateID       ErrorKind = "duplicate_id"
	KindCanceled          ErrorKind = "canceled"
	KindInternal          ErrorKind = "internal"
)

// Classify returns the kind of err.
func Classify(err error) ErrorKind {
	var (
		pe  *design.ParseError
		dm  *storage.DimensionMismatchError
		ext *ExternalServiceError
		ce  *config.ConfigurationError
		ioe *output.IOError
		dup *storage.DuplicateIDError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return KindParse
	case errors.As(err, &dm):
		return KindDimensionMismatch
	case errors.Is(err, matching.ErrNoCandidate):
		return KindNoCandidate
	case errors.As(err, &ext):
		return KindExternalService
	case errors.As(err, &ce):
		return KindConfiguration
	case errors.As(err, &ioe):
		return KindIO
	case errors.As(err, &dup):
		return KindDuplicateID
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}
