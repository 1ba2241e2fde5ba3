package itch

import "errors"

var (
	ErrBufferTooSmall  = errors.New("itch: buffer must be larger than header plus maximum message length")
	ErrMessageTooLarge = errors.New("itch: message length exceeds buffer capacity")
	ErrRead            = errors.New("itch: read failed")
	ErrUnknownType     = errors.New("itch: unknown message type")
	ErrLengthMismatch  = errors.New("itch: message length does not match its type")
	ErrUnsupported     = errors.New("itch: encoding not supported for message type")
)
