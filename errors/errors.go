package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors used to categorize failures across the agent, tools and front door.

var (
	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable indicates a required service is unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrNotInitialized indicates startup did not complete and requests must be refused
	ErrNotInitialized = errors.New("backend not initialized")

	// ErrLLMCommunication indicates the generative backend could not be reached or answered badly
	ErrLLMCommunication = errors.New("llm communication failed")

	// ErrCodeExecution indicates the sandbox could not run the submitted code
	ErrCodeExecution = errors.New("code execution failed")

	// ErrRetrieval indicates the corpus index could not be searched
	ErrRetrieval = errors.New("retrieval failed")

	// ErrRerank indicates the reranker failed
	ErrRerank = errors.New("rerank failed")

	// ErrIndex indicates the corpus index is missing or unreadable
	ErrIndex = errors.New("corpus index unavailable")
)

// WrapError wraps an error with context message
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

// Tag attaches a sentinel to err so callers can match it with errors.Is
// while keeping the original message.
func Tag(sentinel, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsServiceUnavailable checks if error is a service unavailable error
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrNotInitialized)
}

// IsLLMCommunication checks if error came from the generative backend
func IsLLMCommunication(err error) bool {
	return errors.Is(err, ErrLLMCommunication)
}

