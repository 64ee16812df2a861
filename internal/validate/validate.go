package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyURL  = errors.New("Please enter a URL")
	ErrURLScheme = errors.New("Please enter a valid URL starting with http:// or https://")
)

// URL rejects anything the capturer should never be called with.
func URL(u string) error {
	u = strings.TrimSpace(u)
	if u == "" {
		return ErrEmptyURL
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ErrURLScheme
	}
	return nil
}

// UUID reports whether s is a version 4 UUID in canonical form.
func UUID(s string) bool {
	u, err := uuid.Parse(s)
	return err == nil && u.Version() == 4 && u.Variant() == uuid.RFC4122 && u.String() == strings.ToLower(s)
}

// RequiredFields reports the keys missing from a decoded JSON object.
func RequiredFields(data map[string]any, required []string) error {
	var missing []string
	for _, field := range required {
		if _, ok := data[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("Missing required fields: %s", strings.Join(missing, ", "))
}
