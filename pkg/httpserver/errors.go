package httpserver

import "errors"

var (
	ErrStart          = errors.New("httpserver: start failed")
	ErrShutdown       = errors.New("httpserver: unclean shutdown")
	ErrAlreadyRunning = errors.New("httpserver: already serving")
)
