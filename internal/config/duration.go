package config

import (
	"encoding/json"
	"time"

	"golang.org/x/xerrors"
)

// Duration reads "30s" style strings, or a bare number of seconds, from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(value * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return xerrors.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	default:
		return xerrors.Errorf("invalid duration %s", string(b))
	}
	return nil
}
