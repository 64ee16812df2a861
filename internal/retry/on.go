package retry

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/xerrors"
)

// Policy decides which upload failures are worth another attempt. The
// condition names follow envoy's x-envoy-retry-on header.
type Policy struct {
	serverError    bool
	gatewayError   bool
	connectFailure bool
	reset          bool
	retriable4xx   bool
	throttled      bool
	statusCodes    []int
}

// DefaultPolicy retries the failures object stores report as transient, such
// as 503 SlowDown or 409 OperationAborted.
func DefaultPolicy() *Policy {
	return &Policy{
		serverError:    true,
		connectFailure: true,
		reset:          true,
		retriable4xx:   true,
		throttled:      true,
	}
}

// ParsePolicy parses a comma separated list of conditions. Bare numbers are
// treated as status codes.
func ParsePolicy(s string) (*Policy, error) {
	p := &Policy{}
	for _, c := range strings.Split(s, ",") {
		switch c = strings.TrimSpace(c); c {
		case "":
		case "5xx":
			p.serverError = true
		case "gateway-error":
			p.gatewayError = true
		case "connect-failure":
			p.connectFailure = true
		case "reset":
			p.reset = true
		case "retriable-4xx":
			p.retriable4xx = true
		case "throttled":
			p.throttled = true
		default:
			statusCode, err := strconv.Atoi(c)
			if err != nil || statusCode < 100 || statusCode > 599 {
				return nil, xerrors.Errorf("invalid retry condition: %q", c)
			}
			p.statusCodes = append(p.statusCodes, statusCode)
		}
	}
	return p, nil
}

// RetryResponse mirrors envoy's retry_state_impl.cc status handling plus a
// "throttled" condition for 429.
func (p *Policy) RetryResponse(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case p.serverError && code >= 500 && code < 600:
		return true
	case p.gatewayError && code >= 502 && code < 505:
		return true
	case p.retriable4xx && code == http.StatusConflict:
		return true
	case p.throttled && code == http.StatusTooManyRequests:
		return true
	}
	for _, c := range p.statusCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (p *Policy) RetryError(err error) bool {
	if p.reset || p.serverError {
		if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return true
		}
	}
	if p.connectFailure || p.serverError {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return true
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return true
		}
		type temporary interface{ Temporary() bool }
		var terr temporary
		if errors.As(err, &terr) && terr.Temporary() {
			return true
		}
	}
	return false
}
