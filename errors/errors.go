package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrParser indicates the uploaded document could not be parsed
	ErrParser = errors.New("document parsing failed")

	// ErrLLM indicates LLM communication failed after retries
	ErrLLM = errors.New("llm communication failed")

	// ErrInternal indicates an unexpected internal failure
	ErrInternal = errors.New("internal error")

	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrJobNotReady indicates a job has not finished processing yet
	ErrJobNotReady = errors.New("job not ready")

	// ErrJobFailed indicates a job terminated with an error
	ErrJobFailed = errors.New("job failed")
)

// WrapError wraps an error with context message and stack
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsParser checks if error is a document parsing error
func IsParser(err error) bool {
	return errors.Is(err, ErrParser)
}

// IsLLM checks if error is an LLM communication error
func IsLLM(err error) bool {
	return errors.Is(err, ErrLLM)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsJobNotReady checks if error is a job not ready error
func IsJobNotReady(err error) bool {
	return errors.Is(err, ErrJobNotReady)
}

// IsJobFailed checks if error is a job failed error
func IsJobFailed(err error) bool {
	return errors.Is(err, ErrJobFailed)
}
