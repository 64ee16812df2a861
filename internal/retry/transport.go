package retry

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/xerrors"
)

// Transport retries failed round trips. Requests whose body cannot be
// replayed through GetBody, or buffered within MaxBufferedBody, are sent once.
type Transport struct {
	Base    http.RoundTripper
	Backoff Backoff
	Policy  *Policy
	Logger  *slog.Logger
	// MaxRetryAfter caps how long a Retry-After header may stretch a delay.
	MaxRetryAfter time.Duration
	// MaxBufferedBody is the largest body of known length read into memory
	// so that it can be replayed.
	MaxBufferedBody int64
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	ctx := request.Context()
	replayable := request.Body == nil || request.Body == http.NoBody || request.GetBody != nil
	if !replayable && request.ContentLength > 0 && request.ContentLength <= t.MaxBufferedBody {
		buffered, err := buffer(request)
		if err != nil {
			return nil, err
		}
		request, replayable = buffered, true
	}

	for retry := uint(0); ; retry++ {
		attempt := request
		if retry > 0 && request.GetBody != nil {
			body, err := request.GetBody()
			if err != nil {
				return nil, xerrors.Errorf("failed to rewind request body: %w", err)
			}
			attempt = request.Clone(ctx)
			attempt.Body = body
		}

		response, err := t.base().RoundTrip(attempt)

		delay, ok := t.backoff().Delay(retry)
		if !ok || !replayable || t.Policy == nil {
			return response, err
		}
		if err != nil {
			if !t.Policy.RetryError(err) {
				return nil, err
			}
		} else {
			if !t.Policy.RetryResponse(response) {
				return response, nil
			}
			delay = max(delay, t.retryAfter(response))
			_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4<<10))
			_ = response.Body.Close()
		}

		t.logger().Debug("retrying request", "method", request.Method, "host", request.URL.Host, "retry", retry+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func buffer(request *http.Request) (*http.Request, error) {
	data, err := io.ReadAll(request.Body)
	_ = request.Body.Close()
	if err != nil {
		return nil, xerrors.Errorf("failed to buffer request body: %w", err)
	}
	buffered := request.Clone(request.Context())
	buffered.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	buffered.Body, _ = buffered.GetBody()
	return buffered, nil
}

func (t *Transport) retryAfter(response *http.Response) time.Duration {
	v := response.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	var d time.Duration
	if seconds, err := strconv.Atoi(v); err == nil {
		d = time.Duration(seconds) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = time.Until(at)
	}
	if t.MaxRetryAfter > 0 {
		d = min(d, t.MaxRetryAfter)
	}
	return max(d, 0)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) backoff() Backoff {
	if t.Backoff != nil {
		return t.Backoff
	}
	return None()
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
