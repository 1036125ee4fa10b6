package ecsrule

import (
	"fmt"
	"strings"
)

// opKind enumerates the bytecode the emitter can produce.
type opKind int

const (
	opInput opKind = iota
	opSelect
	opDfs
	opWith
	opEach
	opYield
)

func (k opKind) String() string {
	switch k {
	case opInput:
		return "Input"
	case opSelect:
		return "Select"
	case opDfs:
		return "Dfs"
	case opWith:
		return "With"
	case opEach:
		return "Each"
	case opYield:
		return "Yield"
	default:
		return "?"
	}
}

// regNone marks an operation register slot as unused.
const regNone = -1

// operation is one instruction of a compiled rule.
type operation struct {
	kind       opKind
	param      pair
	subject    ID // constant subject entity, valid when hasSubject
	hasSubject bool
	onOk       int
	onFail     int
	column     int // index into the rule's term list, for per-result bookkeeping
	rIn        int
	rOut       int
	hasIn      bool
	hasOut     bool
}

// Rule is a compiled, read-only program over a fixed term list. Iterators
// borrow it and never mutate it.
type Rule struct {
	world *World
	terms []Term
	vars  []variable

	operations []operation

	variableCount        int
	subjectVariableCount int
	registerCount        int
	columnCount          int
	operationCount       int

	yieldVar      int
	yieldIsEntity bool
}

// termToPair resolves a Term's predicate/object operands against vt's
// post-sort ids and world's transitive-predicate metadata. Variable
// operands always resolve to their Entity-kind incarnation — a pair never
// refers to a variable's table form, since a predicate or object position
// must eventually hold a concrete id, not a set of rows.
func termToPair(t Term, vt *variableTable, world *World) pair {
	p := pair{}

	if t.Pred.Kind == OperandConst {
		p.predConst = t.Pred.ID
	} else {
		p.predVar, _ = vt.findEntity(t.Pred.variableName())
		p.predIsVar = true
	}

	if t.HasObj {
		p.hasObj = true
		if t.Obj.Kind == OperandConst {
			p.objConst = t.Obj.ID
		} else {
			p.objVar, _ = vt.findEntity(t.Obj.variableName())
			p.objIsVar = true
		}
		if !p.predIsVar {
			p.transitive = world.IsTransitive(p.predConst)
		}
	}

	return p
}

// ruleEmitter walks a sorted variable table and a term list, appending
// operations in the order spec'd by the program emitter: constant-subject
// terms first, then each subject variable in sorted order, then Each
// promotions for any Table-kind variable whose Entity companion was never
// directly reified, then a trailing Yield.
type ruleEmitter struct {
	world   *World
	vt      *variableTable
	written []bool
	ops     []operation
}

// append assigns an operation its position-implied jump targets — on_ok is
// always the next slot, on_fail the previous one — and adds it to the
// program. This holds for every op including Input (on_fail naturally
// comes out -1) and Yield (on_fail naturally comes out operationCount-2
// once Yield itself is counted).
func (e *ruleEmitter) append(op operation) int {
	idx := len(e.ops)
	op.onOk = idx + 1
	op.onFail = idx - 1
	e.ops = append(e.ops, op)
	return idx
}

func (e *ruleEmitter) markPairWritten(p pair) {
	if p.predIsVar {
		e.written[p.predVar] = true
	}
	if p.hasObj && p.objIsVar {
		e.written[p.objVar] = true
	}
}

// ensureEntityWritten promotes op's Entity-kind companion from its already
// written Table-kind form via an explicit Each, if it isn't written yet and
// has one. Every pair built from here on reads only Entity-kind registers,
// so any variable about to be used as a predicate or object must have its
// entity form available first.
func (e *ruleEmitter) ensureEntityWritten(op Operand) {
	if !op.isVariable() {
		return
	}
	name := op.variableName()
	entityID, ok := e.vt.findEntity(name)
	if !ok || e.written[entityID] {
		return
	}
	tableID, ok := e.vt.findTable(name)
	if !ok || !e.written[tableID] {
		return
	}
	e.append(operation{kind: opEach, hasIn: true, rIn: tableID, hasOut: true, rOut: entityID})
	e.written[entityID] = true
}

// NewRule compiles terms into a Rule bound to world. world supplies
// transitive-predicate metadata at compile time (to choose Select vs Dfs)
// and is retained for evaluation.
func NewRule(world *World, terms []Term) (*Rule, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("ecsrule: rule has no terms")
	}

	vt, subjectVariableCount, err := scanVariables(terms)
	if err != nil {
		return nil, err
	}

	e := &ruleEmitter{world: world, vt: vt, written: make([]bool, len(vt.vars))}
	e.append(operation{kind: opInput})

	for i, t := range terms {
		if t.Subj.Kind != OperandConst {
			continue
		}
		e.ensureEntityWritten(t.Pred)
		if t.HasObj {
			e.ensureEntityWritten(t.Obj)
		}
		p := termToPair(t, vt, world)
		e.append(operation{
			kind:       opWith,
			param:      p,
			subject:    t.Subj.ID,
			hasSubject: true,
			rIn:        regNone,
			column:     i,
		})
		e.markPairWritten(p)
	}

	for tableID := 0; tableID < subjectVariableCount; tableID++ {
		name := vt.vars[tableID].name
		for i, t := range terms {
			if !t.Subj.isVariable() || t.Subj.variableName() != name {
				continue
			}
			e.ensureEntityWritten(t.Pred)
			if t.HasObj {
				e.ensureEntityWritten(t.Obj)
			}
			p := termToPair(t, vt, world)

			entityID, hasEntity := vt.findEntity(name)
			switch {
			case hasEntity && e.written[entityID]:
				e.append(operation{kind: opWith, param: p, hasIn: true, rIn: entityID, column: i})
			case e.written[tableID]:
				e.append(operation{kind: opWith, param: p, hasIn: true, rIn: tableID, column: i})
			default:
				kind := opSelect
				if p.transitive {
					kind = opDfs
				}
				e.append(operation{kind: kind, param: p, hasOut: true, rOut: tableID, column: i})
				e.written[tableID] = true
			}
			e.markPairWritten(p)
		}
	}

	for tableID := 0; tableID < subjectVariableCount; tableID++ {
		if !e.written[tableID] {
			continue
		}
		entityID, ok := vt.findEntity(vt.vars[tableID].name)
		if !ok || e.written[entityID] {
			continue
		}
		e.append(operation{kind: opEach, hasIn: true, rIn: tableID, hasOut: true, rOut: entityID})
		e.written[entityID] = true
	}

	yieldVar := regNone
	yieldIsEntity := false
	if id, ok := vt.findEntity("."); ok && e.written[id] {
		yieldVar, yieldIsEntity = id, true
	} else if id, ok := vt.findTable("."); ok && e.written[id] {
		yieldVar, yieldIsEntity = id, false
	}
	e.append(operation{kind: opYield, rIn: yieldVar})

	return &Rule{
		world:                world,
		terms:                terms,
		vars:                 vt.vars,
		operations:           e.ops,
		variableCount:        len(vt.vars),
		subjectVariableCount: subjectVariableCount,
		registerCount:        len(vt.vars),
		columnCount:          len(terms),
		operationCount:       len(e.ops),
		yieldVar:             yieldVar,
		yieldIsEntity:        yieldIsEntity,
	}, nil
}

// VariableCount returns the number of variables (both kinds) the rule
// declares.
func (r *Rule) VariableCount() int { return r.variableCount }

// FindVariable returns the id of the variable named name, preferring its
// Table-kind incarnation if the name is dual-kinded, or -1 if no variable
// by that name exists.
func (r *Rule) FindVariable(name string) int {
	tableID, entityID := -1, -1
	for _, v := range r.vars {
		if v.name != name {
			continue
		}
		if v.kind == varKindTable {
			tableID = v.id
		} else {
			entityID = v.id
		}
	}
	if tableID >= 0 {
		return tableID
	}
	return entityID
}

// VariableName returns the name of the variable with the given id.
func (r *Rule) VariableName(id int) string { return r.vars[id].name }

// VariableIsEntity reports whether the variable with the given id is
// Entity-kind.
func (r *Rule) VariableIsEntity(id int) bool { return r.vars[id].kind == varKindEntity }

func (r *Rule) regName(id int) string {
	if id < 0 || id >= len(r.vars) {
		return "_"
	}
	v := r.vars[id]
	if v.kind == varKindTable {
		return "t" + v.name
	}
	return v.name
}

// String disassembles the rule: one line per op, "i: [Pass:a, Fail:b] kind
// inputs > outputs".
func (r *Rule) String() string {
	var b strings.Builder
	for i, op := range r.operations {
		fmt.Fprintf(&b, "%d: [Pass:%d, Fail:%d] %s", i, op.onOk, op.onFail, op.kind)
		switch {
		case op.hasIn:
			fmt.Fprintf(&b, " %s", r.regName(op.rIn))
		case op.hasSubject:
			fmt.Fprintf(&b, " %d", op.subject)
		}
		if op.hasOut {
			fmt.Fprintf(&b, " > %s", r.regName(op.rOut))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
