package reminder

import "errors"

var ErrUnknownState = errors.New("reminder: unknown state")
