package retry_test

import (
	"fmt"
	"math"
	"runtime"
	"screenshot-capturer/internal/retry"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func identity(i int64) int64 {
	return i
}

func TestBackoffDelay(t *testing.T) {
	type in struct {
		first uint
	}

	type want struct {
		first  time.Duration
		second bool
	}

	tests := []struct {
		name     string
		receiver retry.Backoff
		in       in
		want     want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.None(),
			in{
				0,
			},
			want{
				0,
				false,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(0, math.MaxInt64, 0, identity),
			in{
				0,
			},
			want{
				0,
				false,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(0, math.MaxInt64, 1, identity),
			in{
				0,
			},
			want{
				0,
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(1*time.Second, math.MaxInt64, 1, identity),
			in{
				0,
			},
			want{
				1 * time.Second,
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(1*time.Second, math.MaxInt64, 2, identity),
			in{
				1,
			},
			want{
				2 * time.Second,
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(1*time.Second, 1*time.Second, 2, identity),
			in{
				1,
			},
			want{
				1 * time.Second,
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(1*time.Second, math.MaxInt64, 64, identity),
			in{
				63,
			},
			want{
				time.Duration(math.MaxInt64),
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(100*time.Second, math.MaxInt64, 32, identity),
			in{
				31,
			},
			want{
				time.Duration(math.MaxInt64),
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential(50*time.Millisecond, 2*time.Second, 3, identity),
			in{
				3,
			},
			want{
				0,
				false,
			},
		},
	}

	for _, tt := range tests {
		name := tt.name
		receiver := tt.receiver
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			gotFirst, gotSecond := receiver.Delay(in.first)
			if diff := cmp.Diff(want.first, gotFirst); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want.second, gotSecond); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestFullJitter(t *testing.T) {
	t.Parallel()

	b := retry.Exponential(time.Second, time.Second, 1, nil)
	for range 100 {
		got, ok := b.Delay(0)
		if !ok {
			t.Fatal("want a retry")
		}
		if got < 0 || got >= time.Second {
			t.Fatalf("delay out of range: %s", got)
		}
	}
	if got := retry.FullJitter(0); got != 0 {
		t.Errorf("want 0, got %d", got)
	}
}
