package ecsrule

import "reflect"

// Resources is a world-global key-value store for singleton values that
// aren't entities: solver configuration, shared caches, anything a rule
// evaluation needs to reach without routing it through a component.
// It keeps at most one value per concrete type.
type Resources struct {
	items   []any
	types   map[reflect.Type]int
	freeIDs []int
}

// Add adds a resource and returns its ID. It panics if a resource of the
// same type is already present.
func (r *Resources) Add(res any) int {
	if res == nil {
		panic("ecsrule: cannot add nil resource")
	}
	t := reflect.TypeOf(res)
	if r.types == nil {
		r.types = make(map[reflect.Type]int)
	}
	if _, ok := r.types[t]; ok {
		panic("ecsrule: resource of type " + t.String() + " already exists")
	}
	var id int
	if len(r.freeIDs) > 0 {
		id = r.freeIDs[len(r.freeIDs)-1]
		r.freeIDs = r.freeIDs[:len(r.freeIDs)-1]
		r.items[id] = res
	} else {
		r.items = append(r.items, res)
		id = len(r.items) - 1
	}
	r.types[t] = id
	return id
}

// Has reports whether a resource with the given id exists.
func (r *Resources) Has(id int) bool {
	return id >= 0 && id < len(r.items) && r.items[id] != nil
}

// Get retrieves the resource by id, or nil if it doesn't exist.
func (r *Resources) Get(id int) any {
	if !r.Has(id) {
		return nil
	}
	return r.items[id]
}

// Remove removes the resource by id, if present, freeing the id for reuse.
func (r *Resources) Remove(id int) {
	if !r.Has(id) {
		return
	}
	t := reflect.TypeOf(r.items[id])
	delete(r.types, t)
	r.items[id] = nil
	r.freeIDs = append(r.freeIDs, id)
}

// Clear removes every resource.
func (r *Resources) Clear() {
	for i := range r.items {
		r.items[i] = nil
	}
	r.items = r.items[:0]
	clear(r.types)
	r.freeIDs = r.freeIDs[:0]
}

// HasResource reports whether a resource of type T exists, returning its
// id alongside true, or -1 alongside false.
func HasResource[T any](r *Resources) (bool, int) {
	t := reflect.TypeOf((*T)(nil))
	if id, ok := r.types[t]; ok {
		return true, id
	}
	return false, -1
}

// GetResource retrieves the resource of type T, or nil if none is set.
func GetResource[T any](r *Resources) (*T, int) {
	t := reflect.TypeOf((*T)(nil))
	if id, ok := r.types[t]; ok {
		res := r.items[id].(*T)
		return res, id
	}
	return nil, -1
}
