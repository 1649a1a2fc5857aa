package utils

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so configuration values can be written
// as "500ms" or "3s". A bare integer is taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. Integer scalars must be
// detected by tag: yaml decodes them into a string just fine, and
// ParseDuration would then reject the unitless value.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var seconds int64
		if err := value.Decode(&seconds); err != nil {
			return fmt.Errorf("invalid duration value: %w", err)
		}
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
