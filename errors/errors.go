package errors

import "fmt"

var (
	// Server start-time failures.
	ErrAlreadyRunning   = fmt.Errorf("server is already running")
	ErrAddressInUse     = fmt.Errorf("address already in use")
	ErrPermissionDenied = fmt.Errorf("permission denied")

	// Client connect-time failures.
	ErrConnectionRefused = fmt.Errorf("connection refused")
	ErrDNSFailure        = fmt.Errorf("hostname resolution failed")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// Settings update failures.
	ErrInvalidConfig = fmt.Errorf("invalid socket configuration")
)
