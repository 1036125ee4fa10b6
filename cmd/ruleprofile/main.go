// Profiling:
// go build ./cmd/ruleprofile
// go tool pprof -http=":8000" ./ruleprofile cpu.pprof
package main

import (
	"github.com/edwinsyarief/ecsrule"
	"github.com/pkg/profile"
)

type Position struct {
	X, Y float64
}

type Health struct {
	HP int
}

func main() {
	rounds := 20
	iters := 2000
	numEntities := 500

	p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	run(rounds, iters, numEntities)
	p.Stop()
}

// run builds a fresh world each round, populates it with a Knows chain of
// numEntities entities (so Knows is both deep and, via the last link back
// to the first entity, cyclic) plus scattered Position/Health components,
// compiles a small set of rules once, and iterates all of them repeatedly.
func run(rounds, iters, numEntities int) {
	for r := 0; r < rounds; r++ {
		w := ecsrule.NewWorld(numEntities)
		ecsrule.RegisterComponent[Position](w)
		ecsrule.RegisterComponent[Health](w)

		knows := w.CreateEntity()
		w.NameEntity(knows, "Knows")
		w.MarkTransitive(ecsrule.EntityID(knows))

		alice := w.CreateEntity()
		w.NameEntity(alice, "Alice")

		entities := make([]ecsrule.Entity, numEntities)
		entities[0] = alice
		for i := 1; i < numEntities; i++ {
			e := w.CreateEntity()
			entities[i] = e
			w.AddRelation(entities[i-1], ecsrule.EntityID(knows), ecsrule.EntityID(e))

			pos, _ := ecsrule.AddComponent[Position](w, e)
			pos.X, pos.Y = float64(i), float64(i)
			if i%3 == 0 {
				hp, _ := ecsrule.AddComponent[Health](w, e)
				hp.HP = 100
			}
		}
		// Close the chain into a cycle. Knows(Alice, X) has a constant
		// subject, so it compiles to a With that returns only Alice's direct
		// Knows fact; the transitive closure, and so the cycle, is not walked.
		w.AddRelation(entities[numEntities-1], ecsrule.EntityID(knows), ecsrule.EntityID(alice))

		knowsChain, err := ecsrule.ParseExpr(w, "Knows(Alice, X)")
		if err != nil {
			panic(err)
		}
		knowsRule, err := ecsrule.NewRule(w, knowsChain)
		if err != nil {
			panic(err)
		}

		healthy, err := ecsrule.ParseExpr(w, "Health(.)")
		if err != nil {
			panic(err)
		}
		healthyRule, err := ecsrule.NewRule(w, healthy)
		if err != nil {
			panic(err)
		}

		for it2 := 0; it2 < iters; it2++ {
			it := knowsRule.Iter()
			count := 0
			for it.Next() {
				count++
			}

			it = healthyRule.Iter()
			for it.Next() {
				_ = it.Table()
			}
		}
	}
}
