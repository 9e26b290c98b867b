package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace/internal/logger"
)

type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindNotFound            ErrorKind = "not_found"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindPersistenceFailure  ErrorKind = "persistence_failure"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindForbidden           ErrorKind = "forbidden"
	KindRateLimited         ErrorKind = "rate_limited"
)

type HTTPError struct {
	Status        int
	Kind          ErrorKind
	Message       string
	CorrelationID string
	Retryable     bool
	// 手動照合用（product_id, deltaなど）
	Details map[string]any

	cause error
}

func (e *HTTPError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d %s: %s: %v", e.Status, e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.cause }

// statusからkindを決める
func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Kind:    kindForStatus(status),
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConcurrencyConflict
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindPersistenceFailure
	}
}

func validationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}

func notFoundError(message string) error {
	return NewHTTPError(http.StatusNotFound, message)
}

// 在庫不足は商品名を出す
func insufficientStockError(productName string) error {
	return &HTTPError{
		Status:  http.StatusConflict,
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %s", productName),
	}
}

// 操作全体をやり直せばよい
func conflictError(message string) error {
	return &HTTPError{
		Status:    http.StatusConflict,
		Kind:      KindConcurrencyConflict,
		Message:   message,
		Retryable: true,
	}
}

// DB失敗
// 利用者には相関IDだけ返し、詳細はログに残す
func persistenceFailure(log logrus.FieldLogger, module, funcName string, details map[string]any, retryable bool, err error) error {
	id := uuid.NewString()

	data := logrus.Fields{"correlation_id": id}
	for k, v := range details {
		data[k] = v
	}
	logger.LogError(log, module, funcName, "persistence failure", data, err)

	status := http.StatusInternalServerError
	if retryable {
		status = http.StatusServiceUnavailable
	}
	return &HTTPError{
		Status:        status,
		Kind:          KindPersistenceFailure,
		Message:       "internal error",
		CorrelationID: id,
		Retryable:     retryable,
		Details:       details,
		cause:         err,
	}
}

// Tx内で返したHTTPErrorはそのまま、それ以外はDB失敗として包む
func wrapTxError(log logrus.FieldLogger, module, funcName string, details map[string]any, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := AsHTTPError(err); ok {
		return he
	}
	return persistenceFailure(log, module, funcName, details, true, err)
}
