package model

import "fmt"

// ChainError represents a violated chain-integrity invariant
type ChainError struct {
	OrgID   string
	ICV     int64
	Message string
	Cause   error
}

func (e *ChainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chain [org=%s icv=%d]: %s (%v)", e.OrgID, e.ICV, e.Message, e.Cause)
	}
	return fmt.Sprintf("chain [org=%s icv=%d]: %s", e.OrgID, e.ICV, e.Message)
}

func (e *ChainError) Unwrap() error {
	return e.Cause
}

// NewChainError creates a new chain error
func NewChainError(orgID string, icv int64, message string, cause error) *ChainError {
	return &ChainError{
		OrgID:   orgID,
		ICV:     icv,
		Message: message,
		Cause:   cause,
	}
}

// CSRError represents a missing or malformed certificate-request field
type CSRError struct {
	Field   string
	Message string
}

func (e *CSRError) Error() string {
	return fmt.Sprintf("csr field %s: %s", e.Field, e.Message)
}

// NewCSRError creates a new CSR error
func NewCSRError(field, message string) *CSRError {
	return &CSRError{
		Field:   field,
		Message: message,
	}
}

// BuildError represents an invoice XML construction failure
type BuildError struct {
	Field   string
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("build invoice: %s: %s (%v)", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("build invoice: %s: %s", e.Field, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// NewBuildError creates a new build error
func NewBuildError(field, message string, cause error) *BuildError {
	return &BuildError{
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}
