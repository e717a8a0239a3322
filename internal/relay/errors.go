package relay

import "errors"

var (
	ErrNameTaken      = errors.New("relay: display name already taken")
	ErrInvalidName    = errors.New("relay: invalid display name")
	ErrNotFound       = errors.New("relay: session not found")
	ErrSessionClosed  = errors.New("relay: session closed")
	ErrAlreadyRunning = errors.New("relay: controller already running")
	ErrNotRunning     = errors.New("relay: controller not running")
)
