package ecsrule_test

import (
	"testing"

	"github.com/edwinsyarief/ecsrule"
)

// socialWorld builds the world the end-to-end scenarios share: entities
// Alice, Bob, Carol; a transitive Knows relation (Alice Knows Bob, Bob
// Knows Carol) and an Eats relation (Alice Eats Apple, Bob Eats Apple).
func socialWorld(t *testing.T) (w *ecsrule.World, alice, bob, carol, knows, eats, apple ecsrule.Entity) {
	t.Helper()
	w = ecsrule.NewWorld(8)

	knows = w.CreateEntity()
	eats = w.CreateEntity()
	apple = w.CreateEntity()
	alice = w.CreateEntity()
	bob = w.CreateEntity()
	carol = w.CreateEntity()

	w.NameEntity(knows, "Knows")
	w.NameEntity(eats, "Eats")
	w.NameEntity(apple, "Apple")
	w.NameEntity(alice, "Alice")
	w.NameEntity(bob, "Bob")
	w.NameEntity(carol, "Carol")

	w.MarkTransitive(ecsrule.EntityID(knows))

	w.AddRelation(alice, ecsrule.EntityID(knows), ecsrule.EntityID(bob))
	w.AddRelation(bob, ecsrule.EntityID(knows), ecsrule.EntityID(carol))
	w.AddRelation(alice, ecsrule.EntityID(eats), ecsrule.EntityID(apple))
	w.AddRelation(bob, ecsrule.EntityID(eats), ecsrule.EntityID(apple))

	return w, alice, bob, carol, knows, eats, apple
}

func compile(t *testing.T, w *ecsrule.World, expr string) *ecsrule.Rule {
	t.Helper()
	terms, err := ecsrule.ParseExpr(w, expr)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", expr, err)
	}
	rule, err := ecsrule.NewRule(w, terms)
	if err != nil {
		t.Fatalf("NewRule(%q): %v", expr, err)
	}
	return rule
}

// entityAt reads the entity the current result names, for a rule whose
// yield is the distinguished "." variable. A "." subject is yielded
// Table-kind, so Row() is -1 and the result is the whole table; that case
// is read as the table's only row, and a table with more rows still
// panics on the -1 index.
func entityAt(it *ecsrule.Iterator) ecsrule.Entity {
	row := it.Row()
	if row < 0 && it.Count() == 1 {
		row = 0
	}
	return it.Table().Entities()[row]
}

// entityVar finds name's Entity-kind register, which is what holds a
// concrete id — unlike FindVariable, which prefers a dual-kinded name's
// Table-kind incarnation.
func entityVar(rule *ecsrule.Rule, name string) int {
	for i := 0; i < rule.VariableCount(); i++ {
		if rule.VariableName(i) == name && rule.VariableIsEntity(i) {
			return i
		}
	}
	return -1
}

// go test -run ^TestKnowsDirectFact$ . -count 1
func TestKnowsDirectFact(t *testing.T) {
	w, alice, _, _, _, _, _ := socialWorld(t)
	rule := compile(t, w, "Knows(., Bob)")

	it := rule.Iter()
	var got []ecsrule.Entity
	for it.Next() {
		got = append(got, entityAt(it))
	}

	if len(got) != 1 || got[0].ID != alice.ID {
		t.Fatalf("expected exactly {Alice}, got %+v", got)
	}
}

// go test -run ^TestKnowsTransitiveEnumeration$ . -count 1
func TestKnowsTransitiveEnumeration(t *testing.T) {
	w, alice, bob, carol, _, _, _ := socialWorld(t)
	rule := compile(t, w, "Knows(., X)")
	x := entityVar(rule, "X")
	if x < 0 {
		t.Fatal("expected a variable X")
	}

	it := rule.Iter()
	type pair struct{ subj, obj uint32 }
	var got []pair
	for it.Next() {
		got = append(got, pair{subj: entityAt(it).ID, obj: uint32(it.Variable(x))})
	}

	want := map[pair]bool{
		{alice.ID, bob.ID}:   true,
		{bob.ID, carol.ID}:   true,
		{alice.ID, carol.ID}: true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d pairs, got %d: %+v", len(want), len(got), got)
	}
	for _, p := range got {
		if !want[p] {
			t.Errorf("unexpected pair %+v", p)
		}
	}
}

// go test -run ^TestEatsAppleAndKnowsBob$ . -count 1
func TestEatsAppleAndKnowsBob(t *testing.T) {
	w, alice, _, _, _, _, _ := socialWorld(t)
	rule := compile(t, w, "Eats(., Apple), Knows(., Bob)")

	it := rule.Iter()
	var got []ecsrule.Entity
	for it.Next() {
		got = append(got, entityAt(it))
	}

	if len(got) != 1 || got[0].ID != alice.ID {
		t.Fatalf("expected exactly {Alice}, got %+v", got)
	}
}

// go test -run ^TestChainedKnows$ . -count 1
func TestChainedKnows(t *testing.T) {
	w, alice, bob, carol, _, _, _ := socialWorld(t)
	rule := compile(t, w, "Knows(X, Y), Knows(Y, Z)")
	xv, yv, zv := entityVar(rule, "X"), entityVar(rule, "Y"), entityVar(rule, "Z")
	if xv < 0 || yv < 0 || zv < 0 {
		t.Fatal("expected variables X, Y and Z")
	}

	it := rule.Iter()
	found := false
	for it.Next() {
		x, y, z := it.Variable(xv), it.Variable(yv), it.Variable(zv)
		if uint32(x) == alice.ID && uint32(y) == bob.ID && uint32(z) == carol.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected (Alice, Bob, Carol) among the results")
	}
}

// go test -run ^TestIteratorExhaustsThenStaysFalse$ . -count 1
func TestIteratorExhaustsThenStaysFalse(t *testing.T) {
	w, _, _, _, _, _, _ := socialWorld(t)
	rule := compile(t, w, "Knows(., Bob)")

	it := rule.Iter()
	for it.Next() {
	}
	if it.Next() {
		t.Fatal("Next should keep returning false once exhausted")
	}
	if it.Next() {
		t.Fatal("a second call after exhaustion should still return false")
	}
}

// go test -run ^TestMatchedIDExposureLiteral$ . -count 1
func TestMatchedIDExposureLiteral(t *testing.T) {
	w, _, _, _, _, eats, apple := socialWorld(t)
	rule := compile(t, w, "Eats(., Apple)")

	it := rule.Iter()
	want := ecsrule.Pair(ecsrule.EntityID(eats), ecsrule.EntityID(apple))
	count := 0
	for it.Next() {
		count++
		if it.ColumnCount() != 1 {
			t.Fatalf("expected 1 column, got %d", it.ColumnCount())
		}
		if got := it.MatchedID(0); got != want {
			t.Errorf("expected matched id %v, got %v", want, got)
		}
		if col := it.Column(0); col < 1 {
			t.Errorf("expected a 1-based literal column, got %d", col)
		}
	}
	if count == 0 {
		t.Fatal("expected at least one result")
	}
}

// go test -run ^TestMatchedIDExposureTransitive$ . -count 1
func TestMatchedIDExposureTransitive(t *testing.T) {
	w, alice, bob, carol, knows, _, _ := socialWorld(t)
	rule := compile(t, w, "Knows(., X)")
	x := entityVar(rule, "X")

	it := rule.Iter()
	want := map[ecsrule.ID]bool{
		ecsrule.Pair(ecsrule.EntityID(knows), ecsrule.EntityID(bob)):   true,
		ecsrule.Pair(ecsrule.EntityID(knows), ecsrule.EntityID(carol)): true,
	}
	_ = alice
	for it.Next() {
		if it.Column(0) != 0 {
			t.Errorf("expected a transitive Dfs match to report column 0, got %d", it.Column(0))
		}
		got := it.MatchedID(0)
		if !want[got] {
			t.Errorf("unexpected matched id %v", got)
		}
		if uint32(ecsrule.Lo(got)) != uint32(it.Variable(x)) {
			t.Errorf("matched id's object half should agree with X's bound value")
		}
	}
}

// go test -run ^TestTransitiveClosureTerminatesOnCycle$ . -count 1
func TestTransitiveClosureTerminatesOnCycle(t *testing.T) {
	w, alice, _, carol, knows, _, _ := socialWorld(t)
	w.AddRelation(carol, ecsrule.EntityID(knows), ecsrule.EntityID(alice))

	rule := compile(t, w, "Knows(., X)")

	it := rule.Iter()
	count := 0
	for it.Next() {
		count++
		if count > 64 {
			t.Fatal("evaluation did not terminate on a predicate cycle")
		}
	}
}
