package engine

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount or price")
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
)
