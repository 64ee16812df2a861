package retry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"screenshot-capturer/internal/retry"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type step func(*http.Request) (*http.Response, error)

// transportMock plays one step per round trip and repeats the last one.
type transportMock struct {
	mu     sync.Mutex
	steps  []step
	bodies []string
}

func (m *transportMock) RoundTrip(request *http.Request) (*http.Response, error) {
	m.mu.Lock()
	i := min(len(m.bodies), len(m.steps)-1)
	body := ""
	if request.Body != nil {
		b, _ := io.ReadAll(request.Body)
		body = string(b)
	}
	m.bodies = append(m.bodies, body)
	m.mu.Unlock()
	return m.steps[i](request)
}

func (m *transportMock) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bodies...)
}

type temporaryError struct {
	s string
}

func (te *temporaryError) Error() string {
	return te.s
}

func (te *temporaryError) Temporary() bool {
	return true
}

func status(code int) step {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("fake")),
		}, nil
	}
}

func fail(err error) step {
	return func(*http.Request) (*http.Response, error) {
		return nil, err
	}
}

func TestTransportRoundTrip(t *testing.T) {
	type in struct {
		steps   []step
		policy  string
		request func() *http.Request
	}

	type want struct {
		status int
		bodies []string
	}

	get := func() *http.Request {
		request, err := http.NewRequest(http.MethodGet, "/", nil)
		if err != nil {
			t.Fatal(err)
		}
		return request
	}
	put := func() *http.Request {
		request, err := http.NewRequest(http.MethodPut, "/", strings.NewReader("payload"))
		if err != nil {
			t.Fatal(err)
		}
		return request
	}

	tests := []struct {
		name            string
		in              in
		want            want
		wantErrorString string
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{status(http.StatusOK)},
				"gateway-error,retriable-4xx,connect-failure",
				get,
			},
			want{
				http.StatusOK,
				[]string{""},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{fail(errors.New("fake"))},
				"gateway-error,retriable-4xx,connect-failure",
				get,
			},
			want{
				0,
				[]string{""},
			},
			`Get "/": fake`,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{fail(&temporaryError{"fake"}), status(http.StatusOK)},
				"gateway-error,retriable-4xx,connect-failure",
				get,
			},
			want{
				http.StatusOK,
				[]string{"", ""},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{fail(&temporaryError{"fake"}), status(http.StatusOK)},
				"gateway-error,retriable-4xx",
				get,
			},
			want{
				0,
				[]string{""},
			},
			`Get "/": fake`,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{status(http.StatusServiceUnavailable), status(http.StatusOK)},
				"gateway-error",
				put,
			},
			want{
				http.StatusOK,
				[]string{"payload", "payload"},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{status(http.StatusTooManyRequests), status(http.StatusConflict), status(http.StatusOK)},
				"throttled,retriable-4xx",
				put,
			},
			want{
				http.StatusOK,
				[]string{"payload", "payload", "payload"},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{status(http.StatusServiceUnavailable)},
				"5xx",
				put,
			},
			want{
				http.StatusServiceUnavailable,
				[]string{"payload", "payload", "payload", "payload"},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{status(http.StatusServiceUnavailable), status(http.StatusOK)},
				"5xx",
				func() *http.Request {
					request := put()
					request.GetBody = nil
					return request
				},
			},
			want{
				http.StatusServiceUnavailable,
				[]string{"payload"},
			},
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]step{fail(&temporaryError{"fake"}), status(http.StatusOK)},
				"connect-failure",
				func() *http.Request {
					ctx, cancel := context.WithCancel(context.Background())
					cancel()
					return get().WithContext(ctx)
				},
			},
			want{
				0,
				[]string{""},
			},
			`Get "/": context canceled`,
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		wantErrorString := tt.wantErrorString
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			mock := &transportMock{steps: in.steps}
			client := &http.Client{
				Transport: &retry.Transport{
					Base:    mock,
					Backoff: retry.Exponential(time.Millisecond, 10*time.Millisecond, 3, nil),
					Policy:  mustParse(t, in.policy),
				},
			}

			got, err := client.Do(in.request())
			if err == nil {
				defer got.Body.Close()
				if diff := cmp.Diff(want.status, got.StatusCode); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
				if diff := cmp.Diff(wantErrorString, ""); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			} else {
				if diff := cmp.Diff(wantErrorString, err.Error()); diff != "" {
					t.Errorf("(-want +got):\n%s", diff)
				}
			}
			if diff := cmp.Diff(want.bodies, mock.calls()); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransportRetryAfter(t *testing.T) {
	t.Parallel()

	mock := &transportMock{steps: []step{
		func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Header:     http.Header{"Retry-After": []string{"120"}},
				Body:       http.NoBody,
			}, nil
		},
		status(http.StatusOK),
	}}
	client := &http.Client{
		Transport: &retry.Transport{
			Base:          mock,
			Backoff:       retry.Exponential(0, 0, 1, nil),
			Policy:        retry.DefaultPolicy(),
			MaxRetryAfter: 50 * time.Millisecond,
		},
	}

	start := time.Now()
	response, err := client.Get("/")
	if err != nil {
		t.Fatal(err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", response.StatusCode)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("Retry-After not honoured within its cap: %s", elapsed)
	}
}

func TestTransportBuffersBody(t *testing.T) {
	t.Parallel()

	mock := &transportMock{steps: []step{status(http.StatusServiceUnavailable), status(http.StatusOK)}}
	client := &http.Client{
		Transport: &retry.Transport{
			Base:            mock,
			Backoff:         retry.Exponential(time.Millisecond, time.Millisecond, 3, nil),
			Policy:          retry.DefaultPolicy(),
			MaxBufferedBody: 1 << 10,
		},
	}

	request, err := http.NewRequest(http.MethodPut, "/", strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	request.GetBody = nil

	response, err := client.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	defer response.Body.Close()
	if diff := cmp.Diff(http.StatusOK, response.StatusCode); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"payload", "payload"}, mock.calls()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
