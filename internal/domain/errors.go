package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindCustomerNotFound  Kind = "CustomerNotFound"
	KindOrderNotFound     Kind = "OrderNotFound"
	KindItemNotFound      Kind = "ItemNotFound"
	KindProductNotFound   Kind = "NotFound"
	KindInvalidInput      Kind = "InvalidInput"
	KindInvalidState      Kind = "InvalidState"
	KindInsufficientStock Kind = "InsufficientStock"
	KindLastItem          Kind = "LastItem"
	KindInternal          Kind = "Internal"
)

// Error is the only error type that leaves the workflow boundary.
type Error struct {
	Kind    Kind
	Message string

	// Set for KindInsufficientStock and KindProductNotFound.
	ProductID int64
	Available int
	Requested int
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrCustomerNotFound  = &Error{Kind: KindCustomerNotFound, Message: "customer not found"}
	ErrOrderNotFound     = &Error{Kind: KindOrderNotFound, Message: "order not found"}
	ErrItemNotFound      = &Error{Kind: KindItemNotFound, Message: "order item not found"}
	ErrProductNotFound   = &Error{Kind: KindProductNotFound, Message: "product not found"}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrInvalidState      = &Error{Kind: KindInvalidState, Message: "invalid order state"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrLastItem          = &Error{Kind: KindLastItem, Message: "cannot remove the last item of an order"}
	ErrInternal          = &Error{Kind: KindInternal, Message: "internal error"}
)

func CustomerNotFound(id int64) *Error {
	return &Error{Kind: KindCustomerNotFound, Message: fmt.Sprintf("customer %d not found", id)}
}

func OrderNotFound(id int64) *Error {
	return &Error{Kind: KindOrderNotFound, Message: fmt.Sprintf("order %d not found", id)}
}

func ItemNotFound(orderID, itemID int64) *Error {
	return &Error{Kind: KindItemNotFound, Message: fmt.Sprintf("item %d not found on order %d", itemID, orderID)}
}

func ProductNotFound(id int64) *Error {
	return &Error{Kind: KindProductNotFound, Message: fmt.Sprintf("product %d not found", id), ProductID: id}
}

func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func InsufficientStock(productID int64, available, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", productID, available, requested),
		ProductID: productID,
		Available: available,
		Requested: requested,
	}
}

func LastItem(orderID int64) *Error {
	return &Error{Kind: KindLastItem, Message: fmt.Sprintf("item is the last one on order %d; delete the order instead", orderID)}
}

// Internal hides the underlying cause from callers; log it before calling.
func Internal() *Error {
	return &Error{Kind: KindInternal, Message: "internal error"}
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNotFound groups every *NotFound kind.
func (k Kind) IsNotFound() bool {
	switch k {
	case KindCustomerNotFound, KindOrderNotFound, KindItemNotFound, KindProductNotFound:
		return true
	}
	return false
}
