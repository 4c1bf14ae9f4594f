package clientsync

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

// the auth provider signals that proactive refresh is not available for this
// session. benign terminal: no retry, no logout; the credential simply
// expires and the normal unauthenticated flow takes over.
var ErrRefreshUnsupported = errors.New("token refresh not supported")

// the auth provider rejected the credential (invalid or expired refresh
// credential, server-side 401/403 equivalent). never retried.
var ErrCredentialRejected = errors.New("credential rejected")

// classifies a refresh failure as retry-worthy
// network-layer failures including tls handshake and certificate errors are
// transient. credential rejections are permanent. unknown errors default to
// permanent so a real logout requirement is never masked by retries.
func IsTransientRefreshError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredentialRejected) || errors.Is(err, ErrRefreshUnsupported) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var recordHeaderErr tls.RecordHeaderError
	if errors.As(err, &recordHeaderErr) {
		return true
	}
	var certVerificationErr *tls.CertificateVerificationError
	if errors.As(err, &certVerificationErr) {
		return true
	}
	var unknownAuthorityErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthorityErr) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var certInvalidErr x509.CertificateInvalidError
	if errors.As(err, &certInvalidErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.EHOSTUNREACH,
			syscall.ENETUNREACH,
			syscall.ENETDOWN,
			syscall.ENETRESET,
			syscall.ETIMEDOUT,
			syscall.EPIPE,
			syscall.ENOTCONN:
			return true
		}
	}

	return false
}
