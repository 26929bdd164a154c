package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// Code はクライアントに返す機械可読なエラー種別
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeOutOfStock           Code = "OUT_OF_STOCK"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeNotFound             Code = "NOT_FOUND"
	CodeForbidden            Code = "FORBIDDEN"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeEmptyCart            Code = "EMPTY_CART"
	CodeConflict             Code = "CONFLICT"
	CodeOrderNumberCollision Code = "ORDER_NUMBER_COLLISION"
	CodeInternal             Code = "INTERNAL"
)

type HTTPError struct {
	Status  int
	Code    Code
	Message string
	// 項目ごとのメッセージ（json のキー名）
	Fields map[string]string

	cause error
}

func (e *HTTPError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d %s: %s: %v", e.Status, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.cause
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    codeForStatus(status),
		Message: message,
	}
}

func codeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	default:
		return CodeInternal
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func IsCode(err error, code Code) bool {
	he, ok := AsHTTPError(err)
	return ok && he.Code == code
}

func NewValidationError(message string, fields map[string]string) error {
	return &HTTPError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message, Fields: fields}
}

// 1項目だけのバリデーションエラー
func fieldError(field, message string) error {
	return NewValidationError(message, map[string]string{field: message})
}

func NewNotFound(what string) error {
	return &HTTPError{Status: http.StatusNotFound, Code: CodeNotFound, Message: what + " not found"}
}

func NewForbidden() error {
	return &HTTPError{Status: http.StatusForbidden, Code: CodeForbidden, Message: "forbidden"}
}

func NewUnauthorized() error {
	return &HTTPError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
}

func NewOutOfStock(productName string) error {
	return &HTTPError{
		Status:  http.StatusConflict,
		Code:    CodeOutOfStock,
		Message: fmt.Sprintf("%s is out of stock", productName),
	}
}

func NewInsufficientStock(productName string, available int64) error {
	return &HTTPError{
		Status:  http.StatusConflict,
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("only %d of %s available", available, productName),
	}
}

func NewEmptyCart() error {
	return &HTTPError{Status: http.StatusBadRequest, Code: CodeEmptyCart, Message: "your cart is empty"}
}

func NewConflict(message string) error {
	return &HTTPError{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

func NewOrderNumberCollision(attempts int) error {
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    CodeOrderNumberCollision,
		Message: "could not allocate an order number",
		cause:   fmt.Errorf("order number collided %d times", attempts),
	}
}

// NewInternal は利用者には一般的なメッセージだけ返す
func NewInternal(cause error) error {
	return &HTTPError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error", cause: cause}
}

// passThrough は既に HTTPError ならそのまま、それ以外は INTERNAL で包む
func passThrough(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return NewInternal(err)
}
