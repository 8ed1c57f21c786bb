package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrFrameTooLarge    = fmt.Errorf("%w: frame size exceeds maximum allowed", ErrMalformedFrame)
	ErrIO               = errors.New("i/o failure")
)
