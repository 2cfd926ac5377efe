package errors

import (
	stderrors "errors"
	"fmt"
	"net"
	"syscall"
)

// ClassifyListen maps an OS-level listen failure onto the start-time
// taxonomy. Unrecognized errors pass through unchanged.
func ClassifyListen(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, syscall.EADDRINUSE):
		return fmt.Errorf("%w: %v", ErrAddressInUse, err)
	case stderrors.Is(err, syscall.EACCES):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

// ClassifyDial maps a connect failure onto the client taxonomy.
// DNS errors are checked before the generic timeout because a resolver
// timeout should surface as a resolution failure, not a socket one.
func ClassifyDial(err error) error {
	if err == nil {
		return nil
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrDNSFailure, err)
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
