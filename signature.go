package ntrc

import (
	"fmt"
	"slices"
	"strings"
)

// RedactedMarker is displayed in place of the value of a redacted parameter,
// regardless of capture level.
const RedactedMarker = "[REDACTED]"

// Parameter is a captured method parameter. Value is pre-rendered text,
// including quotes for string values. An empty Value means the value was
// suppressed by the capture level, not that it was absent.
type Parameter struct {
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	Redacted bool   `json:"redacted,omitempty"`
}

// Display returns the text that should be shown for the parameter.
func (p Parameter) Display() string {
	if p.Redacted {
		return RedactedMarker
	}
	return p.Value
}

// Signature describes a single method call. Narration and ErrorContext are
// already-resolved human text, or empty if not provided.
//
// Signatures are values. The recorder never modifies a signature it's given;
// operations that need a different signature make a copy.
type Signature struct {
	Class        string      `json:"class"`
	Method       string      `json:"method"`
	Parameters   []Parameter `json:"parameters,omitempty"`
	Narration    string      `json:"narration,omitempty"`
	ErrorContext string      `json:"error_context,omitempty"`
}

// Name returns Class.Method, or just Method if Class is empty.
func (sig Signature) Name() string {
	if sig.Class == "" {
		return sig.Method
	}
	return sig.Class + "." + sig.Method
}

// String implements fmt.Stringer, e.g. `OrderService.place(id: "A-1", qty: 5)`.
func (sig Signature) String() string {
	var sb strings.Builder
	sb.WriteString(sig.Name())
	sb.WriteByte('(')
	for i, p := range sig.Parameters {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name)
		sb.WriteString(": ")
		sb.WriteString(p.Display())
	}
	sb.WriteByte(')')
	return sb.String()
}

// WithErrorContext returns a copy of the signature with the given error
// context.
func (sig Signature) WithErrorContext(errorContext string) Signature {
	sig.Parameters = slices.Clone(sig.Parameters)
	sig.ErrorContext = errorContext
	return sig
}

// withSuppressedValues returns a copy of the signature with every parameter
// value cleared. Redaction flags are preserved.
func (sig Signature) withSuppressedValues() Signature {
	if len(sig.Parameters) <= 0 {
		return sig
	}
	suppressed := make([]Parameter, len(sig.Parameters))
	for i, p := range sig.Parameters {
		suppressed[i] = Parameter{Name: p.Name, Redacted: p.Redacted}
	}
	sig.Parameters = suppressed
	return sig
}

//
//
//

// Outcome describes how a call completed. It's either [Returned] or [Threw];
// no other implementations exist.
type Outcome interface {
	fmt.Stringer
	isOutcome()
}

// Returned is the outcome of a call that completed normally.
type Returned struct {
	Value string // pre-rendered return value, empty for no value
}

// Threw is the outcome of a call that completed with an error.
type Threw struct {
	Err error
}

func (Returned) isOutcome() {}
func (Threw) isOutcome()    {}

// String implements fmt.Stringer.
func (r Returned) String() string { return "→ " + r.Value }

// String implements fmt.Stringer.
func (t Threw) String() string { return "!! " + ErrorMessage(t.Err) }

// ErrorType returns a short, human-readable name for the dynamic type of err,
// e.g. "InsufficientStockError" for a *orders.InsufficientStockError.
func ErrorType(err error) string {
	if err == nil {
		return "<nil>"
	}
	name := fmt.Sprintf("%T", err)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// ErrorMessage returns err.Error(), or "<nil>" for a nil error.
func ErrorMessage(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
