package validate_test

import (
	"errors"
	"fmt"
	"runtime"
	"screenshot-capturer/internal/validate"
	"testing"

	"github.com/google/uuid"
)

func TestURL(t *testing.T) {
	type in struct {
		first string
	}

	type want struct {
		first error
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
				"",
			},
			want{
				validate.ErrEmptyURL,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"   ",
			},
			want{
				validate.ErrEmptyURL,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"ftp://x",
			},
			want{
				validate.ErrURLScheme,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"example.com",
			},
			want{
				validate.ErrURLScheme,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"http://example.com",
			},
			want{
				nil,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"https://www.example.com/path?q=1",
			},
			want{
				nil,
			},
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := validate.URL(in.first); !errors.Is(got, want.first) {
				t.Errorf("expected %v, got %v", want.first, got)
			}
		})
	}
}

func TestUUID(t *testing.T) {
	if id := uuid.NewString(); !validate.UUID(id) {
		t.Errorf("expected %s to be valid", id)
	}
	if !validate.UUID("123E4567-E89B-42D3-A456-426614174000") {
		t.Error("expected upper-case v4 UUID to be valid")
	}
	for _, s := range []string{
		"",
		"not-a-uuid",
		"123e4567-e89b-12d3-a456-426614174000",
		"123e4567-e89b-42d3-c456-426614174000",
		"{123e4567-e89b-42d3-a456-426614174000}",
		"urn:uuid:123e4567-e89b-42d3-a456-426614174000",
		"123e4567e89b42d3a456426614174000",
	} {
		if validate.UUID(s) {
			t.Errorf("expected %s to be invalid", s)
		}
	}
}

func TestRequiredFields(t *testing.T) {
	data := map[string]any{"url": "https://example.com", "format": "png"}

	if err := validate.RequiredFields(data, []string{"url"}); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	err := validate.RequiredFields(data, []string{"url", "width", "height"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if want := "Missing required fields: height, width"; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
