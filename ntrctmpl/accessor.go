package ntrctmpl

import (
	"reflect"
	"sync"
)

// Propertier is implemented by values that expose named properties to
// property placeholders. Property should return false if the property
// doesn't exist.
type Propertier interface {
	Property(name string) (any, bool)
}

type accessorKey struct {
	typ      reflect.Type
	property string
}

var accessors struct {
	sync.RWMutex
	m map[accessorKey]func(any) any
}

// RegisterAccessor makes property available to property placeholders for
// values of type T. The most recent registration for a given type and property
// wins. Accessors are called with the exact value bound in the template
// values, so a pointer type and its element type are registered separately.
//
//	ntrctmpl.RegisterAccessor("id", func(o *Order) any { return o.ID })
func RegisterAccessor[T any](property string, fn func(T) any) {
	key := accessorKey{typ: reflect.TypeFor[T](), property: property}

	accessors.Lock()
	defer accessors.Unlock()

	if accessors.m == nil {
		accessors.m = map[accessorKey]func(any) any{}
	}
	accessors.m[key] = func(v any) any { return fn(v.(T)) }
}

// lookupProperty returns the property of v, preferring the value's own
// Propertier implementation over registered accessors.
func lookupProperty(v any, property string) (any, bool) {
	if p, ok := v.(Propertier); ok {
		if pv, ok := p.Property(property); ok {
			return pv, true
		}
	}

	accessors.RLock()
	fn, ok := accessors.m[accessorKey{typ: reflect.TypeOf(v), property: property}]
	accessors.RUnlock()
	if !ok {
		return nil, false
	}

	return fn(v), true
}
