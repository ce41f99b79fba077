// Package types defines the shared result, enum and error types of pdf-translator.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// WatermarkMode 水印输出模式
type WatermarkMode string

const (
	// NoWatermark 不添加水印
	NoWatermark WatermarkMode = "no_watermark"
	// Watermarked 仅在原文区域/页面添加水印
	Watermarked WatermarkMode = "watermarked"
	// Both 原文与译文区域/页面都添加水印
	Both WatermarkMode = "both"
)

// ParseWatermarkMode accepts the option spellings, case-insensitive.
// An empty string yields Watermarked.
func ParseWatermarkMode(s string) (WatermarkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Watermarked, nil
	case "no_watermark", "none", "no-watermark":
		return NoWatermark, nil
	case "watermarked":
		return Watermarked, nil
	case "both":
		return Both, nil
	}
	return "", fmt.Errorf("unknown watermark mode %q", s)
}

// TranslateResult 翻译结果，未生成的输出为空字符串
type TranslateResult struct {
	MonoPDFPath string `json:"mono_pdf_path,omitempty"`
	DualPDFPath string `json:"dual_pdf_path,omitempty"`
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrParseFailure         ErrorCode = "PARSE_FAILURE"
	ErrTranslationFailure   ErrorCode = "TRANSLATION_FAILURE"
	ErrCompositionFailure   ErrorCode = "COMPOSITION_FAILURE"
	ErrPersistenceFailure   ErrorCode = "PERSISTENCE_FAILURE"
	ErrTimeoutExceeded      ErrorCode = "TIMEOUT_EXCEEDED"
	ErrInternal             ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *AppError with the same code, so
// errors.Is(err, &AppError{Code: ErrParseFailure}) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// CodeOf returns the code of the outermost AppError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
