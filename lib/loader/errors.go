package loader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoLoader    = errors.New("no loader configured")
	ErrScriptLoad  = errors.New("unable to load script")
	ErrUnknownPath = errors.New("module id does not resolve to a file")
)

// ConfigurationError is returned when a load is requested for a type nothing was
// registered for.
type ConfigurationError struct {
	Type      string
	ModuleIDs []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no loader configured for external dependencies of type: %s, failed to load %s",
		e.Type, strings.Join(e.ModuleIDs, ", "))
}

func (e *ConfigurationError) Unwrap() error { return ErrNoLoader }

// ScriptLoadError is the failure of a single script injection. Injections are
// never retried.
type ScriptLoadError struct {
	Path string
	Err  error
}

func (e *ScriptLoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unable to load %s", e.Path)
	}
	return fmt.Sprintf("unable to load %s: %v", e.Path, e.Err)
}

func (e *ScriptLoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrScriptLoad}
	}
	return []error{ErrScriptLoad, e.Err}
}
