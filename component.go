package ecsrule

import (
	"fmt"
	"reflect"
	"unsafe"
)

// ComponentID is a unique identifier for a registered component type. It is
// numerically compatible with ID (an ID built from a ComponentID simply
// widens it), so registered components can be used directly as predicates
// or objects in rule expressions.
type ComponentID uint32

const (
	bitsPerWord       = 64
	maskWords         = 4
	maxComponentTypes = maskWords * bitsPerWord
)

// componentRegistry maps Go types to the ComponentID the world's
// archetypes index storage by. It is owned by a World so that multiple
// worlds in the same test binary don't collide.
type componentRegistry struct {
	typeToID map[reflect.Type]ComponentID
	idToType map[ComponentID]reflect.Type
	sizes    [maxComponentTypes]uintptr
	names    map[ComponentID]string
	next     ComponentID
}

func newComponentRegistry() componentRegistry {
	return componentRegistry{
		typeToID: make(map[reflect.Type]ComponentID, 16),
		idToType: make(map[ComponentID]reflect.Type, 16),
		names:    make(map[ComponentID]string, 16),
	}
}

// registerComponent returns the ComponentID for T, allocating one on first use.
func registerComponent[T any](r *componentRegistry) ComponentID {
	var zero T
	t := reflect.TypeOf(zero)
	if id, ok := r.typeToID[t]; ok {
		return id
	}
	if int(r.next) >= maxComponentTypes {
		panic(fmt.Sprintf("ecsrule: cannot register component %s: maximum of %d component types reached", t.Name(), maxComponentTypes))
	}
	id := r.next
	r.typeToID[t] = id
	r.idToType[id] = t
	r.names[id] = t.Name()
	r.sizes[id] = t.Size()
	r.next++
	return id
}

func (r *componentRegistry) idFor(t reflect.Type) (ComponentID, bool) {
	id, ok := r.typeToID[t]
	return id, ok
}

func (r *componentRegistry) nameOf(id ComponentID) string {
	if n, ok := r.names[id]; ok {
		return n
	}
	return fmt.Sprintf("Component#%d", id)
}

// RegisterComponent registers a component type on w and returns its
// ComponentID. Registering the same type twice returns the existing id.
// The type's name becomes resolvable by the expression parser via
// World.ResolveName.
func RegisterComponent[T any](w *World) ComponentID {
	id := registerComponent[T](&w.components)
	w.SetName(ID(id), w.components.nameOf(id))
	return id
}

// size returns the size in bytes of a registered component.
func (r *componentRegistry) size(id ComponentID) uintptr {
	return r.sizes[id]
}

// memCopy copies size bytes from src to dst.
func memCopy(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	dstBytes := unsafe.Slice((*byte)(dst), size)
	srcBytes := unsafe.Slice((*byte)(src), size)
	copy(dstBytes, srcBytes)
}
