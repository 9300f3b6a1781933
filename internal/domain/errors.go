package domain

import "errors"

var (
	ErrEmptyBasket       = errors.New("basket is empty")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrOrderInProgress   = errors.New("order already in progress")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderNotFound     = errors.New("order not found")
	ErrUserNotFound      = errors.New("user not found")
)
