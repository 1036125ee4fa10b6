// Package ecsrule implements a rule solver for an entity-component-system
// (ECS) world: given a declarative rule expression over entities,
// predicates and objects, it compiles the rule to a small bytecode program
// and evaluates that program against a World to enumerate every variable
// assignment that satisfies the rule.
package ecsrule

// Entity is a unique identifier for an object in the World. It combines a
// recyclable 32-bit ID with a 32-bit generation counter so that stale
// references to a removed entity can be detected instead of silently
// aliasing a reused ID.
type Entity struct {
	ID      uint32
	Version uint32
}

// entityMeta holds the internal location of a live entity.
type entityMeta struct {
	table   *Table
	row     int
	version uint32 // current version, 0 if the entity is dead
}
