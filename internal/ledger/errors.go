package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain rule violations.
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidProduct      = errors.New("invalid product")
	ErrInvalidMovement     = errors.New("invalid stock movement")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrRegisterAlreadyOpen = errors.New("register already open")
	ErrRegisterNotOpen     = errors.New("register not open")
	ErrInventoryNotStarted = errors.New("inventory not started")
	ErrCodeNotInInventory  = errors.New("code not in inventory")
	ErrInvalidSale         = errors.New("invalid sale")
	ErrSaleNotFound        = errors.New("sale not found")
	ErrSaleAlreadyVoided   = errors.New("sale already voided")
)

// ErrorCode categorizes domain errors for API and CLI consumers.
type ErrorCode string

const (
	CodeProductNotFound     ErrorCode = "PRODUCT_NOT_FOUND"
	CodeInvalidProduct      ErrorCode = "INVALID_PRODUCT"
	CodeInvalidMovement     ErrorCode = "INVALID_MOVEMENT"
	CodeInsufficientStock   ErrorCode = "INSUFFICIENT_STOCK"
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	CodeRegisterAlreadyOpen ErrorCode = "REGISTER_ALREADY_OPEN"
	CodeRegisterNotOpen     ErrorCode = "REGISTER_NOT_OPEN"
	CodeInventoryNotStarted ErrorCode = "INVENTORY_NOT_STARTED"
	CodeCodeNotInInventory  ErrorCode = "CODE_NOT_IN_INVENTORY"
	CodeInvalidSale         ErrorCode = "INVALID_SALE"
	CodeSaleNotFound        ErrorCode = "SALE_NOT_FOUND"
	CodeSaleAlreadyVoided   ErrorCode = "SALE_ALREADY_VOIDED"
)

var codes = map[error]ErrorCode{
	ErrProductNotFound:     CodeProductNotFound,
	ErrInvalidProduct:      CodeInvalidProduct,
	ErrInvalidMovement:     CodeInvalidMovement,
	ErrInsufficientStock:   CodeInsufficientStock,
	ErrInvalidAmount:       CodeInvalidAmount,
	ErrRegisterAlreadyOpen: CodeRegisterAlreadyOpen,
	ErrRegisterNotOpen:     CodeRegisterNotOpen,
	ErrInventoryNotStarted: CodeInventoryNotStarted,
	ErrCodeNotInInventory:  CodeCodeNotInInventory,
	ErrInvalidSale:         CodeInvalidSale,
	ErrSaleNotFound:        CodeSaleNotFound,
	ErrSaleAlreadyVoided:   CodeSaleAlreadyVoided,
}

// Error is a domain rule violation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EntityID identifies the product, sale or session involved.
	EntityID string

	err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.EntityID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the sentinel error.
func (e *Error) Unwrap() error { return e.err }

func newError(sentinel error, entityID, format string, args ...any) *Error {
	return &Error{
		Code:     codes[sentinel],
		Message:  fmt.Sprintf(format, args...),
		EntityID: entityID,
		err:      sentinel,
	}
}

// CodeOf returns the code of a domain error, or "" for other errors.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}
