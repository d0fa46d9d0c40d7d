package value

import "fmt"

// CapabilityError reports an operation that the Value's kind does not
// support, such as reading the tag name of a JSON number.
type CapabilityError struct {
	Op      string
	Kind    Kind
	Subject string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s is not supported on %s value %q", e.Op, e.Kind, e.Subject)
}
