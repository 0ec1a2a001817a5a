package ntrcinst

import (
	"errors"
	"fmt"
	"strings"

	"github.com/peterbourgon/ntrc"
	"github.com/peterbourgon/ntrc/ntrctmpl"
)

// Method describes an instrumented method: its identity, its parameters, and
// the templates used to narrate it.
type Method struct {
	// Class is the short name of the type or component that owns the method,
	// e.g. "OrderService".
	Class string

	// Name of the method, e.g. "placeOrder".
	Name string

	// Params describes the method's arguments, in order.
	Params []Param

	// Narrated is an optional template describing what the method does, e.g.
	// "Placing order for {customer.name}". Placeholders refer to parameter
	// names.
	Narrated string

	// OnErrors are optional templates describing what it means when the
	// method fails. See OnError.
	OnErrors []OnError
}

// Key returns the key the method is registered under, Class.Name.
func (m Method) Key() string {
	return ntrc.Signature{Class: m.Class, Method: m.Name}.Name()
}

// Param describes a single method argument.
type Param struct {
	Name string

	// Redacted params are never rendered. They appear in traces, logs, and
	// templates as the redaction marker, at every level.
	Redacted bool
}

// OnError is an error context template. When a call fails, the first OnError
// whose Match accepts the error is resolved and attached to the call. An
// OnError with a nil Match accepts every error, but is only used when no
// OnError with a Match accepts the error, regardless of declaration order.
//
// Error context templates may refer to parameter names, as well as to "err",
// the error itself, unless a parameter has that name.
type OnError struct {
	Template string
	Match    func(error) bool
}

// ErrorIs returns a matcher accepting errors for which errors.Is(err, target)
// is true.
func ErrorIs(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// ErrorAs returns a matcher accepting errors for which errors.As finds an
// error of type E in the chain.
func ErrorAs[E error]() func(error) bool {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

//
//
//

// metadata is everything about a method that can be computed once, ahead of
// the first call.
type metadata struct {
	class     string
	name      string
	params    []Param
	narrated  *ntrctmpl.Template // nil if the method isn't narrated
	onErrors  []onError          // specific matchers, in declaration order
	catchAll  *ntrctmpl.Template // nil if there's no catch-all
	errorName bool               // true if "err" is free to refer to the error
}

type onError struct {
	template *ntrctmpl.Template
	match    func(error) bool
}

func newMetadata(m Method) *metadata {
	md := &metadata{
		class:     m.Class,
		name:      m.Name,
		params:    m.Params,
		errorName: true,
	}
	for _, p := range m.Params {
		if p.Name == "err" {
			md.errorName = false
		}
	}
	if m.Narrated != "" {
		md.narrated = ntrctmpl.Parse(m.Narrated)
	}
	for _, oe := range m.OnErrors {
		switch {
		case oe.Match == nil && md.catchAll == nil:
			md.catchAll = ntrctmpl.Parse(oe.Template)
		case oe.Match != nil:
			md.onErrors = append(md.onErrors, onError{template: ntrctmpl.Parse(oe.Template), match: oe.Match})
		}
	}
	return md
}

// fallbackMetadata describes an unregistered method, given its key.
func fallbackMetadata(key string) *metadata {
	class, name := "", key
	if i := strings.LastIndex(key, "."); i >= 0 {
		class, name = key[:i], key[i+1:]
	}
	return &metadata{class: class, name: name, errorName: true}
}

// paramName returns the name of the i'th argument.
func (md *metadata) paramName(i int) (string, bool) {
	if i < len(md.params) {
		return md.params[i].Name, md.params[i].Redacted
	}
	return fmt.Sprintf("arg%d", i), false
}

// errorTemplate returns the template that applies to err, or nil.
func (md *metadata) errorTemplate(err error) *ntrctmpl.Template {
	for _, oe := range md.onErrors {
		if safeMatch(oe.match, err) {
			return oe.template
		}
	}
	return md.catchAll
}

func safeMatch(match func(error) bool, err error) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return match(err)
}
