// Package ntrcvalue renders arbitrary Go values as short, human-readable text
// for parameter and return values in traces.
package ntrcvalue

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Summarizer is implemented by types that want to control how they appear in
// traces. It takes precedence over every other rendering rule for non-scalar
// values.
type Summarizer interface {
	NarrativeSummary() string
}

// Default limits, used in place of zero-valued Renderer fields.
const (
	DefaultMaxStringLength    = 200
	DefaultMaxCollectionItems = 5
	DefaultMaxObjectFields    = 5
)

// maxDepth bounds recursion through values that can't be cycle-checked by
// address, like maps of interfaces that contain themselves.
const maxDepth = 16

const ellipsis = "…"

// Renderer renders values. The zero value is usable, and uses the default
// limits.
type Renderer struct {
	MaxStringLength    int // runes, before the ellipsis
	MaxCollectionItems int // slice, array, and map entries
	MaxObjectFields    int // exported struct fields
}

// DefaultRenderer is used by the package-level Render function.
var DefaultRenderer = &Renderer{}

// Render v using the default renderer.
func Render(v any) string {
	return DefaultRenderer.Render(v)
}

// Render returns a rendering of v. Strings are quoted, and truncated if they're
// too long. Numbers and booleans are rendered plainly. Errors render as their
// message. Summarizers and fmt.Stringers render as the text they produce.
// Slices, arrays, maps, and structs are rendered structurally, within the
// renderer's limits. Pointers are followed, and cycles are rendered as the
// type and address of the repeated value. Render never panics.
func (r *Renderer) Render(v any) string {
	if v == nil {
		return "null"
	}
	st := &renderState{r: r, seen: map[uintptr]bool{}}
	st.render(reflect.ValueOf(v), 0)
	return st.sb.String()
}

func (r *Renderer) maxStringLength() int {
	return withDefault(r.MaxStringLength, DefaultMaxStringLength)
}

func (r *Renderer) maxCollectionItems() int {
	return withDefault(r.MaxCollectionItems, DefaultMaxCollectionItems)
}

func (r *Renderer) maxObjectFields() int {
	return withDefault(r.MaxObjectFields, DefaultMaxObjectFields)
}

func withDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

//
//
//

type renderState struct {
	r    *Renderer
	sb   strings.Builder
	seen map[uintptr]bool
}

func (st *renderState) render(v reflect.Value, depth int) {
	if !v.IsValid() {
		st.sb.WriteString("null")
		return
	}

	if depth > maxDepth {
		st.sb.WriteString(ellipsis)
		return
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			st.sb.WriteString("null")
			return
		}
	}

	if st.renderScalar(v) {
		return
	}

	if st.renderInterfaces(v) {
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		st.render(v.Elem(), depth+1)

	case reflect.Pointer:
		addr := v.Pointer()
		if st.seen[addr] {
			fmt.Fprintf(&st.sb, "<%s@%#x>", typeName(v.Type().Elem()), addr)
			return
		}
		st.seen[addr] = true
		st.render(v.Elem(), depth+1)
		delete(st.seen, addr)

	case reflect.Slice, reflect.Array:
		st.renderList(v, depth)

	case reflect.Map:
		st.renderMap(v, depth)

	case reflect.Struct:
		st.renderStruct(v, depth)

	default:
		fmt.Fprintf(&st.sb, "<%s>", typeName(v.Type()))
	}
}

// renderScalar renders strings, numbers, and booleans. Named numeric types
// with a String method, like enums and time.Duration, render via that method.
func (st *renderState) renderScalar(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		st.sb.WriteString(st.quote(v.String()))
		return true

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		if s, ok := stringer(v); ok {
			st.sb.WriteString(safeString(v, s.String))
			return true
		}
		st.sb.WriteString(formatScalar(v))
		return true

	default:
		return false
	}
}

// renderInterfaces renders values that describe themselves.
func (st *renderState) renderInterfaces(v reflect.Value) bool {
	if !v.CanInterface() {
		return false
	}
	switch x := v.Interface().(type) {
	case Summarizer:
		st.sb.WriteString(safeString(v, x.NarrativeSummary))
		return true
	case error:
		st.sb.WriteString(safeString(v, x.Error))
		return true
	case fmt.Stringer:
		st.sb.WriteString(safeString(v, x.String))
		return true
	default:
		return false
	}
}

func (st *renderState) renderList(v reflect.Value, depth int) {
	var (
		n     = v.Len()
		limit = min(n, st.r.maxCollectionItems())
	)
	st.sb.WriteByte('[')
	for i := 0; i < limit; i++ {
		if i > 0 {
			st.sb.WriteString(", ")
		}
		st.render(v.Index(i), depth+1)
	}
	if n > limit {
		fmt.Fprintf(&st.sb, ", %s (%d total)", ellipsis, n)
	}
	st.sb.WriteByte(']')
}

func (st *renderState) renderMap(v reflect.Value, depth int) {
	type entry struct {
		key string
		val reflect.Value
	}

	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key := &renderState{r: st.r, seen: st.seen}
		key.render(iter.Key(), depth+1)
		entries = append(entries, entry{key: key.sb.String(), val: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })

	var (
		n     = len(entries)
		limit = min(n, st.r.maxCollectionItems())
	)
	st.sb.WriteByte('{')
	for i, e := range entries[:limit] {
		if i > 0 {
			st.sb.WriteString(", ")
		}
		st.sb.WriteString(e.key)
		st.sb.WriteString(": ")
		st.render(e.val, depth+1)
	}
	if n > limit {
		fmt.Fprintf(&st.sb, ", %s (%d total)", ellipsis, n)
	}
	st.sb.WriteByte('}')
}

func (st *renderState) renderStruct(v reflect.Value, depth int) {
	var (
		t      = v.Type()
		fields []int
	)
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			fields = append(fields, i)
		}
	}

	limit := min(len(fields), st.r.maxObjectFields())
	st.sb.WriteString(typeName(t))
	st.sb.WriteByte('{')
	for i, idx := range fields[:limit] {
		if i > 0 {
			st.sb.WriteString(", ")
		}
		st.sb.WriteString(t.Field(idx).Name)
		st.sb.WriteString(": ")
		st.render(v.Field(idx), depth+1)
	}
	if len(fields) > limit {
		st.sb.WriteString(", ")
		st.sb.WriteString(ellipsis)
	}
	st.sb.WriteByte('}')
}

func (st *renderState) quote(s string) string {
	limit := st.r.maxStringLength()
	if utf8.RuneCountInString(s) <= limit {
		return `"` + s + `"`
	}
	var i, n int
	for i = range s {
		if n == limit {
			break
		}
		n++
	}
	return `"` + s[:i] + ellipsis + `"`
}

//
//
//

func formatScalar(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// stringer returns the String method of named scalar types that have one.
func stringer(v reflect.Value) (fmt.Stringer, bool) {
	if !v.CanInterface() || v.Type().PkgPath() == "" {
		return nil, false
	}
	s, ok := v.Interface().(fmt.Stringer)
	return s, ok
}

// safeString calls fn, and returns <Type> if it panics.
func safeString(v reflect.Value, fn func() string) (s string) {
	defer func() {
		if recover() != nil {
			s = "<" + typeName(v.Type()) + ">"
		}
	}()
	return fn()
}

// typeName returns the unqualified name of t, e.g. "Order" for a
// *orders.Order, or the type literal for unnamed types.
func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}
