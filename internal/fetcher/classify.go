package fetcher

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Error categories recorded on failed frontier rows.
const (
	CategoryNetworkTimeout  = "network_timeout"
	CategoryConnectionError = "connection_error"
	CategoryDBError         = "db_error"
	CategoryParseError      = "parse_error"
	CategoryUnexpected      = "unexpected"
)

// ClassifyFetchError maps a transport error to an error category for the
// frontier row and the error log.
func ClassifyFetchError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetworkTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryNetworkTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnectionError
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryConnectionError
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CategoryConnectionError
	}

	return CategoryUnexpected
}
