package clientsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type timeoutError struct{}

func (self *timeoutError) Error() string {
	return "timeout"
}

func (self *timeoutError) Timeout() bool {
	return true
}

func (self *timeoutError) Temporary() bool {
	return true
}

func TestTransientRefreshErrors(t *testing.T) {
	transientErrs := []error{
		&timeoutError{},
		context.DeadlineExceeded,
		&net.DNSError{Err: "no such host", Name: "api.example.com"},
		&net.OpError{Op: "dial", Err: errors.New("connection refused")},
		syscall.ECONNREFUSED,
		syscall.EHOSTUNREACH,
		syscall.ENETUNREACH,
		syscall.ECONNRESET,
		syscall.ENOTCONN,
		syscall.ETIMEDOUT,
		fmt.Errorf("dial: %w", syscall.ECONNRESET),
	}
	for _, err := range transientErrs {
		assert.Equal(t, true, IsTransientRefreshError(err))
	}
}

func TestPermanentRefreshErrors(t *testing.T) {
	permanentErrs := []error{
		ErrCredentialRejected,
		fmt.Errorf("refresh: %w", ErrCredentialRejected),
		// unknown errors default permanent so retries never mask a real
		// logout requirement
		errors.New("unexpected response"),
	}
	for _, err := range permanentErrs {
		assert.Equal(t, false, IsTransientRefreshError(err))
	}

	assert.Equal(t, false, IsTransientRefreshError(nil))
	assert.Equal(t, false, IsTransientRefreshError(ErrRefreshUnsupported))
}

func TestNetTimeoutIsTransient(t *testing.T) {
	// a real dial timeout surfaces as a net.Error with Timeout() == true
	d := &net.Dialer{Timeout: 1 * time.Nanosecond}
	_, err := d.Dial("tcp", "203.0.113.1:44444")
	if err != nil {
		assert.Equal(t, true, IsTransientRefreshError(err))
	}
}
