package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

// HumanizeError maps a fetch failure to a user-legible reason instead
// of a raw network error code. Unrecognized errors pass through their
// own message.
func HumanizeError(err error) string {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "Site not found - Invalid URL"
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "Connection timeout - Site took too long to respond"
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return "Connection refused - Site is not accessible"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "Connection reset - Site closed the connection"
	}

	var (
		certVerify  *tls.CertificateVerificationError
		certInvalid x509.CertificateInvalidError
		unknownCA   x509.UnknownAuthorityError
		hostname    x509.HostnameError
	)
	if errors.As(err, &certVerify) || errors.As(err, &certInvalid) ||
		errors.As(err, &unknownCA) || errors.As(err, &hostname) {
		return "SSL certificate error - Site security certificate is invalid"
	}

	return err.Error()
}
