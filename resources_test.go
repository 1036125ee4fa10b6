package ecsrule

import "testing"

func TestResources(t *testing.T) {
	type testStruct1 struct{}
	type testStruct2 struct{}

	t.Run("Add and Get", func(t *testing.T) {
		r := &Resources{}
		res1 := &testStruct1{}
		id := r.Add(res1)
		if id != 0 {
			t.Errorf("expected id 0, got %d", id)
		}
		if got := r.Get(0); got != res1 {
			t.Errorf("expected %v, got %v", res1, got)
		}
	})

	t.Run("Has", func(t *testing.T) {
		r := &Resources{}
		r.Add(&testStruct1{})
		if !r.Has(0) {
			t.Error("expected true")
		}
		if r.Has(1) {
			t.Error("expected false")
		}
		if r.Has(-1) {
			t.Error("expected false")
		}
	})

	t.Run("Add same type panics", func(t *testing.T) {
		r := &Resources{}
		r.Add(&testStruct1{})
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		r.Add(&testStruct1{})
	})

	t.Run("Add different types", func(t *testing.T) {
		r := &Resources{}
		r.Add(&testStruct1{})
		id := r.Add(&testStruct2{})
		if id != 1 {
			t.Errorf("expected id 1, got %d", id)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		r := &Resources{}
		id := r.Add(&testStruct1{})
		r.Remove(id)
		if r.Has(id) {
			t.Error("expected false")
		}
		if r.Get(id) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("Add after Remove same type", func(t *testing.T) {
		r := &Resources{}
		id1 := r.Add(&testStruct1{})
		r.Remove(id1)
		id2 := r.Add(&testStruct1{})
		if id2 != id1 {
			t.Errorf("expected reused id %d, got %d", id1, id2)
		}
		if !r.Has(id2) {
			t.Error("expected true")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		r := &Resources{}
		r.Add(&testStruct1{})
		r.Add(&testStruct2{})
		r.Clear()
		if r.Has(0) || r.Has(1) {
			t.Error("expected every resource to be gone after Clear")
		}
	})
}

func TestTypedResourceHelpers(t *testing.T) {
	type config struct{ Value int }

	r := &Resources{}
	if ok, id := HasResource[config](r); ok || id != -1 {
		t.Fatalf("expected no config resource yet, got ok=%v id=%d", ok, id)
	}

	r.Add(&config{Value: 7})
	ok, id := HasResource[config](r)
	if !ok || id != 0 {
		t.Fatalf("expected a config resource at id 0, got ok=%v id=%d", ok, id)
	}

	got, gotID := GetResource[config](r)
	if got == nil || got.Value != 7 || gotID != id {
		t.Fatalf("unexpected GetResource result: %+v, %d", got, gotID)
	}
}
