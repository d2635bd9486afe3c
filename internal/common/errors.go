package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes exposed to clients.
const (
	CodeEmptyExtraction   = "EMPTY_EXTRACTION"
	CodeEmptyResult       = "EMPTY_RESULT"
	CodeRecognitionFailed = "RECOGNITION_FAILED"
	CodeAuthMissing       = "AUTH_MISSING"
	CodeRequestFailed     = "REQUEST_FAILED"
	CodeEmptyCandidate    = "EMPTY_CANDIDATE"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeEmptyText         = "EMPTY_TEXT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeBusy              = "BUSY"
	CodeStaleResponse     = "STALE_RESPONSE"
	CodeQueueFull         = "QUEUE_FULL"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeConfig            = "CONFIG_ERROR"
	CodeInternal          = "INTERNAL"
)

// Pipeline failures surfaced to the user.
var (
	ErrEmptyExtraction   = errors.New("no text extracted")
	ErrEmptyResult       = errors.New("empty analysis result")
	ErrRecognitionFailed = errors.New("text recognition failed")
	ErrAuthMissing       = errors.New("api key missing")
	ErrRequestFailed     = errors.New("analysis request failed")
	ErrEmptyCandidate    = errors.New("no candidate in response")
	ErrMalformedResponse = errors.New("malformed analysis response")
	ErrEmptyText         = errors.New("no ingredient text")
)

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrBusy              = errors.New("operation already in flight")
	ErrStaleResponse     = errors.New("stale response")
	ErrQueueFull         = errors.New("job queue full")
	ErrInternal          = errors.New("internal error")
	ErrValidation        = errors.New("validation failed")
)

// user-facing messages for errors that carry no message of their own
var userMessages = map[error]string{
	ErrEmptyExtraction:   "No text was extracted from the image. Please try with a clearer image of a food label.",
	ErrEmptyResult:       "The analysis did not return valid results. Please try again.",
	ErrRecognitionFailed: "Failed to extract text from image. Please try again with a clearer image.",
	ErrAuthMissing:       "Gemini API key is missing. Please add your API key to the configuration.",
	ErrMalformedResponse: "Failed to parse AI response. The API did not return valid JSON. Please try again.",
	ErrEmptyText:         "No ingredient text to analyze. Please make sure text is extracted from the image first.",
	ErrBusy:              "Please wait for the current operation to finish.",
	ErrQueueFull:         "The service is busy. Please try again in a moment.",
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// UserMessage returns the human-readable text stored on a session for err.
// Request failures keep their status/body detail so the user can diagnose them.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrRequestFailed) || errors.Is(err, ErrEmptyCandidate) {
		detail := "No response from Gemini API"
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Message != "" {
			detail = appErr.Message
		}
		return fmt.Sprintf("Failed to analyze ingredients: %s. Please check your API key and try again.", detail)
	}
	for sentinel, msg := range userMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// Code returns the client-facing error code for err.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrEmptyExtraction):
		return CodeEmptyExtraction
	case errors.Is(err, ErrEmptyResult):
		return CodeEmptyResult
	case errors.Is(err, ErrRecognitionFailed):
		return CodeRecognitionFailed
	case errors.Is(err, ErrAuthMissing):
		return CodeAuthMissing
	case errors.Is(err, ErrRequestFailed):
		return CodeRequestFailed
	case errors.Is(err, ErrEmptyCandidate):
		return CodeEmptyCandidate
	case errors.Is(err, ErrMalformedResponse):
		return CodeMalformedResponse
	case errors.Is(err, ErrEmptyText):
		return CodeEmptyText
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrStaleResponse):
		return CodeStaleResponse
	case errors.Is(err, ErrQueueFull):
		return CodeQueueFull
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return CodeInvalidInput
	}
	return CodeInternal
}

// HTTPStatus maps an error onto a transport status code.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput, CodeEmptyText, CodeEmptyExtraction, CodeEmptyResult:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeBusy, CodeStaleResponse:
		return http.StatusConflict
	case CodeQueueFull:
		return http.StatusServiceUnavailable
	case CodeAuthMissing:
		return http.StatusPreconditionFailed
	case CodeRequestFailed, CodeEmptyCandidate, CodeMalformedResponse, CodeRecognitionFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
