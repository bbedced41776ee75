package dispatch

import "errors"

var (
	ErrClosed      = errors.New("dispatch: closed")
	ErrNilRequest  = errors.New("dispatch: nil request")
	ErrNilCallback = errors.New("dispatch: nil callback")
	ErrDuplicateID = errors.New("dispatch: request id already pending")
)
