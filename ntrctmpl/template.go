// Package ntrctmpl resolves narration and error context templates.
//
// A template is literal text with placeholders. A simple placeholder {name}
// is replaced with the value bound to name. A property placeholder
// {name.property} is replaced with a property of that value, where properties
// are provided by the value itself, via the Propertier interface, or by an
// accessor registered with RegisterAccessor. Placeholders that can't be
// resolved are left in the output verbatim, and can be found afterwards with
// FindUnresolved. Resolution never fails and never panics.
package ntrctmpl

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// placeholderRegexp matches a placeholder, capturing its inner text.
var placeholderRegexp = regexp.MustCompile(`\{([^}]+)\}`)

// Template is a parsed template. Templates are immutable, and safe for
// concurrent use.
type Template struct {
	text     string
	segments []segment
}

type segmentKind int

const (
	literalSegment segmentKind = iota
	simpleSegment
	propertySegment
)

type segment struct {
	kind     segmentKind
	text     string // literal text, or the verbatim placeholder
	name     string
	property string
}

var cache sync.Map // template text -> *Template

// Parse returns the parsed form of the template text. Parsed templates are
// cached by their exact text, for the life of the process.
func Parse(text string) *Template {
	if t, ok := cache.Load(text); ok {
		return t.(*Template)
	}
	t, _ := cache.LoadOrStore(text, parse(text))
	return t.(*Template)
}

func parse(text string) *Template {
	var (
		segments []segment
		last     int
	)
	for _, loc := range placeholderRegexp.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > last {
			segments = append(segments, segment{kind: literalSegment, text: text[last:start]})
		}
		inner := text[loc[2]:loc[3]]
		if name, property, ok := strings.Cut(inner, "."); ok {
			segments = append(segments, segment{kind: propertySegment, text: text[start:end], name: name, property: property})
		} else {
			segments = append(segments, segment{kind: simpleSegment, text: text[start:end], name: inner})
		}
		last = end
	}
	if last < len(text) {
		segments = append(segments, segment{kind: literalSegment, text: text[last:]})
	}
	return &Template{text: text, segments: segments}
}

// String returns the original template text.
func (t *Template) String() string {
	return t.text
}

// Names returns the value names referenced by the template's placeholders, in
// order of first appearance.
func (t *Template) Names() []string {
	var (
		names []string
		seen  = map[string]bool{}
	)
	for _, seg := range t.segments {
		if seg.kind == literalSegment || seen[seg.name] {
			continue
		}
		seen[seg.name] = true
		names = append(names, seg.name)
	}
	return names
}

//
//
//

// Resolver resolves templates against named values.
type Resolver struct {
	// Stringify converts a resolved value to text. If nil, fmt.Sprint is
	// used.
	Stringify func(any) string
}

// DefaultResolver is used by the package-level Resolve function.
var DefaultResolver = &Resolver{}

// Resolve the template text against the values using the default resolver.
func Resolve(text string, values map[string]any) string {
	return DefaultResolver.Resolve(text, values)
}

// Resolve the template text against the values.
func (r *Resolver) Resolve(text string, values map[string]any) string {
	return r.Execute(Parse(text), values)
}

// Execute resolves the parsed template against the values.
func (r *Resolver) Execute(t *Template, values map[string]any) string {
	var sb strings.Builder
	for _, seg := range t.segments {
		switch seg.kind {
		case literalSegment:
			sb.WriteString(seg.text)

		case simpleSegment:
			v, ok := values[seg.name]
			if !ok || v == nil {
				sb.WriteString(seg.text)
				continue
			}
			sb.WriteString(r.stringify(v))

		case propertySegment:
			resolved, ok := r.property(values[seg.name], seg.property)
			if !ok {
				sb.WriteString(seg.text)
				continue
			}
			sb.WriteString(resolved)
		}
	}
	return sb.String()
}

func (r *Resolver) property(v any, property string) (_ string, ok bool) {
	if v == nil {
		return "", false
	}

	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	pv, found := lookupProperty(v, property)
	if !found || pv == nil {
		return "", false
	}

	s := r.stringify(pv)
	if s == "" {
		return "", false
	}
	return s, true
}

func (r *Resolver) stringify(v any) (s string) {
	defer func() {
		if x := recover(); x != nil {
			s = fmt.Sprintf("<%T>", v)
		}
	}()
	if r.Stringify != nil {
		return r.Stringify(v)
	}
	return fmt.Sprint(v)
}

//
//
//

// FindUnresolved returns the inner text of every placeholder that remains in
// the resolved text, in order. It returns nil for text without placeholders.
func FindUnresolved(resolved string) []string {
	if resolved == "" {
		return nil
	}
	var unresolved []string
	for _, m := range placeholderRegexp.FindAllStringSubmatch(resolved, -1) {
		unresolved = append(unresolved, m[1])
	}
	return unresolved
}
