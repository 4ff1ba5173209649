package variant

import (
	"errors"
	"fmt"
)

// ErrConfiguration classifies matrix integrity problems. Generation produces no
// output when it is returned.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError names the carrier or environment that broke the matrix.
type ConfigurationError struct {
	Subject string
	Name    string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s %q: %s", ErrConfiguration, e.Subject, e.Name, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
