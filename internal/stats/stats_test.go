package stats_test

import (
	"errors"
	"fmt"
	"runtime"
	"screenshot-capturer/internal/stats"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMean(t *testing.T) {
	type in struct {
		first []float64
	}

	type want struct {
		first float64
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{1, 2, 3, 4, 5},
			},
			want{
				3.0,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{1.5, 2.5, 3.5},
			},
			want{
				2.5,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{1, 2.5, 3},
			},
			want{
				6.5 / 3,
			},
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := stats.Mean(in.first)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestMeanIntegers(t *testing.T) {
	got, err := stats.Mean([]int{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if got != 2.5 {
		t.Errorf("expected 2.5, got %f", got)
	}
}

func TestMedian(t *testing.T) {
	type in struct {
		first []float64
	}

	type want struct {
		first float64
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{1, 2, 3, 4, 5},
			},
			want{
				3.0,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{1, 2, 3, 4},
			},
			want{
				2.5,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{5, 2, 1, 4, 3},
			},
			want{
				3.0,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{1.5, 2.5, 3.5},
			},
			want{
				2.5,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				[]float64{1, 2.5, 3},
			},
			want{
				2.5,
			},
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := stats.Median(in.first)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	numbers := []int{5, 2, 1, 4, 3}
	if _, err := stats.Median(numbers); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{5, 2, 1, 4, 3}, numbers); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestEmpty(t *testing.T) {
	_, err := stats.Mean([]float64{})
	if !errors.Is(err, stats.ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if err.Error() != "Cannot calculate mean of empty list" {
		t.Errorf("unexpected message %q", err.Error())
	}

	_, err = stats.Median([]float64(nil))
	if !errors.Is(err, stats.ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if err.Error() != "Cannot calculate median of empty list" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRecorder(t *testing.T) {
	r := stats.NewRecorder(3)

	if diff := cmp.Diff(stats.Summary{}, r.Summary()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	for _, ms := range []int{100, 200, 300, 1000} {
		r.Observe(time.Duration(ms) * time.Millisecond)
	}

	// 100ms was evicted
	want := stats.Summary{
		Count:    4,
		MeanMS:   500,
		MedianMS: 300,
	}
	if diff := cmp.Diff(want, r.Summary()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
