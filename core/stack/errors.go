package stack

import "github.com/pkg/errors"

var (
	ErrMem       = errors.New("out of buffer memory")
	ErrBuf       = errors.New("buffer error")
	ErrArg       = errors.New("illegal argument")
	ErrIf        = errors.New("interface error")
	ErrNetifDown = errors.New("interface is down")
	ErrRoute     = errors.New("no route to host")
)
