package utility

import (
	"fmt"

	"github.com/tombee/chord/pkg/errors"
)

// Error codes returned by the utility actions.
const (
	// CodeMissing means a required config field is absent.
	CodeMissing = "010"

	// CodeInvalid means a config field has the wrong type or range.
	CodeInvalid = "101"

	// CodeUnsupported means the requested algorithm or mode is unknown.
	CodeUnsupported = "102"

	// CodeInterrupted means the action stopped because its context ended.
	CodeInterrupted = "103"
)

func missing(kind, field string) error {
	return &errors.ActionError{Code: CodeMissing, Message: fmt.Sprintf("%s: missing %s", kind, field)}
}

func invalid(kind, format string, args ...interface{}) error {
	return &errors.ActionError{Code: CodeInvalid, Message: kind + ": " + fmt.Sprintf(format, args...)}
}

func unsupported(kind, value string) error {
	return &errors.ActionError{Code: CodeUnsupported, Message: fmt.Sprintf("%s: unsupported %s", kind, value)}
}

// renderedConfig renders the whole step config against the case.
func renderedConfig(kind string, arg renderer) (map[string]interface{}, error) {
	v, err := arg.RenderValue(arg.Config())
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return t, nil
	default:
		return nil, invalid(kind, "config must be an object, got %T", v)
	}
}

type renderer interface {
	Config() interface{}
	RenderValue(value interface{}) (interface{}, error)
}
