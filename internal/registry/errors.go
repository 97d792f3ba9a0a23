package registry

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateName is returned when a tool name is registered twice.
	ErrDuplicateName = errors.New("duplicate tool name")
	// ErrNotFound is returned by Lookup for an unregistered name.
	ErrNotFound = errors.New("tool not found")
	// ErrRegistryClosed is returned by Register once the registry is sealed.
	ErrRegistryClosed = errors.New("registry is closed")
	// ErrInvalidDescriptor is returned for a malformed descriptor or nil handler.
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
)

// ToolError is a failure whose message is safe to return to a caller.
// Handlers return it for problems the caller can fix; any other error
// is reported with a generic message.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// Errorf builds a ToolError.
func Errorf(format string, args ...any) error {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}

// AsToolError extracts a ToolError from an error chain.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
