package lock

import "errors"

var (
	ErrAcquireTimeout = errors.New("lock: acquire canceled before the key was free")
	ErrLockBackend    = errors.New("lock: backend error")
)
