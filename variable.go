package ecsrule

import (
	"fmt"
	"math"
	"sort"
)

// varKind distinguishes the two incarnations a rule variable may take. A
// single name can own both: a subject is first bound as a Table, then
// expanded to an Entity once it's read as a predicate or object.
type varKind int

const (
	varKindTable varKind = iota // must sort first
	varKindEntity
)

// maxSubjectVariables bounds the number of distinct subject variables a
// rule may declare.
const maxSubjectVariables = 256

// depthUnset marks a variable whose dependency depth hasn't been computed
// yet — or, after analysis, one unreachable from the root.
const depthUnset = math.MaxInt32

type variable struct {
	kind   varKind
	name   string
	id     int
	occurs int
	depth  int
	marked bool
}

// variableTable owns every variable discovered while analyzing a term
// list, indexed by name and kind.
type variableTable struct {
	vars      []variable
	tableIdx  map[string]int
	entityIdx map[string]int
}

func newVariableTable() *variableTable {
	return &variableTable{tableIdx: map[string]int{}, entityIdx: map[string]int{}}
}

func (vt *variableTable) ensureTable(name string) int {
	if id, ok := vt.tableIdx[name]; ok {
		return id
	}
	id := len(vt.vars)
	vt.vars = append(vt.vars, variable{kind: varKindTable, name: name, id: id, depth: depthUnset})
	vt.tableIdx[name] = id
	return id
}

func (vt *variableTable) ensureEntity(name string) int {
	if id, ok := vt.entityIdx[name]; ok {
		return id
	}
	id := len(vt.vars)
	vt.vars = append(vt.vars, variable{kind: varKindEntity, name: name, id: id, depth: depthUnset})
	vt.entityIdx[name] = id
	return id
}

func (vt *variableTable) findTable(name string) (int, bool) {
	id, ok := vt.tableIdx[name]
	return id, ok
}

func (vt *variableTable) findEntity(name string) (int, bool) {
	id, ok := vt.entityIdx[name]
	return id, ok
}

// subjectCompanion returns the Table-kind variable backing op, if op is a
// variable and also occurs as some term's subject. This is the single
// mechanism that both resolves a subject operand to its variable and
// decides, for depth analysis, whether a predicate/object operand counts
// as a dependency edge (it only does when the same name is independently
// constrained as a subject elsewhere).
func (vt *variableTable) subjectCompanion(op Operand) (int, bool) {
	if !op.isVariable() {
		return 0, false
	}
	return vt.findTable(op.variableName())
}

func (vt *variableTable) entityCompanion(op Operand) (int, bool) {
	if !op.isVariable() {
		return 0, false
	}
	return vt.findEntity(op.variableName())
}

// UnconstrainedVariableError reports a subject variable that analysis
// could not reach from the rule's elected root.
type UnconstrainedVariableError struct {
	Name string
}

func (e *UnconstrainedVariableError) Error() string {
	return fmt.Sprintf("ecsrule: unconstrained variable %q", e.Name)
}

// TooManyVariablesError reports a rule with more subject variables than
// maxSubjectVariables.
type TooManyVariablesError struct {
	Count int
}

func (e *TooManyVariablesError) Error() string {
	return fmt.Sprintf("ecsrule: too many variables in rule (%d, max %d)", e.Count, maxSubjectVariables)
}

// scanVariables runs the full variable-discovery and dependency-ordering
// pass over terms: collect subject roots, materialize every name used
// anywhere as Table- and/or Entity-kind, elect a root, assign dependency
// depths via DFS with cycle marking, reject unreachable subjects, and
// sort the result by (kind, depth, occurs desc, id desc).
//
// subjectVariableCount, the number of Table-kind variables, is returned
// separately since emission walks exactly that prefix of the sorted
// table.
func scanVariables(terms []Term) (*variableTable, int, error) {
	vt := newVariableTable()

	thisVar := -1
	maxOccur := -1
	maxOccurVar := -1

	for _, t := range terms {
		if !t.Subj.isVariable() {
			continue
		}
		name := t.Subj.variableName()
		id := vt.ensureTable(name)
		vt.vars[id].occurs++
		if vt.vars[id].occurs > maxOccur {
			maxOccur = vt.vars[id].occurs
			maxOccurVar = id
		}
		if name == "." {
			thisVar = id
		}
	}

	subjectVariableCount := len(vt.vars)
	if subjectVariableCount > maxSubjectVariables {
		return nil, 0, &TooManyVariablesError{Count: subjectVariableCount}
	}

	for _, t := range terms {
		if t.Pred.isVariable() {
			vt.ensureEntity(t.Pred.variableName())
		}
		// This is excluded here on purpose: a "." subject gets no
		// Entity-kind incarnation from this slot; "." has one only when it
		// also appears as a predicate or object.
		if t.Subj.Kind == OperandVar {
			vt.ensureEntity(t.Subj.variableName())
		}
		if t.HasObj && t.Obj.isVariable() {
			vt.ensureEntity(t.Obj.variableName())
		}
	}

	rootVar := thisVar
	if rootVar < 0 {
		rootVar = maxOccurVar
	}
	if rootVar < 0 {
		// No subject variables: the rule operates on a fixed set of
		// entities and there is nothing to order.
		return vt, subjectVariableCount, nil
	}

	getVariableDepth(terms, vt, rootVar, rootVar, 0)

	for i := 0; i < subjectVariableCount; i++ {
		if vt.vars[i].depth == depthUnset {
			return nil, 0, &UnconstrainedVariableError{Name: vt.vars[i].name}
		}
	}

	sortVariables(vt)

	return vt, subjectVariableCount, nil
}

func getDepthFromVar(terms []Term, vt *variableTable, u, root, recur int) int {
	if u == root {
		return 0
	}
	if vt.vars[u].depth != depthUnset {
		return vt.vars[u].depth + 1
	}
	if vt.vars[u].marked {
		return 0
	}
	d := getVariableDepth(terms, vt, u, root, recur+1)
	if d == depthUnset {
		return depthUnset
	}
	return d + 1
}

func getDepthFromTerm(terms []Term, vt *variableTable, cur, predID int, predOK bool, objID int, objOK bool, root, recur int) int {
	if !predOK && !objOK {
		return 0
	}
	result := depthUnset
	if predOK && predID != cur {
		d := getDepthFromVar(terms, vt, predID, root, recur)
		if d == depthUnset {
			return depthUnset
		}
		if d < result {
			result = d
		}
	}
	if objOK && objID != cur {
		d := getDepthFromVar(terms, vt, objID, root, recur)
		if d == depthUnset {
			return depthUnset
		}
		if d < result {
			result = d
		}
	}
	return result
}

// getVariableDepth computes v's dependency depth from root by scanning
// every term where v is the subject, then crawls predicate/object
// co-occurrences so that variables tied together only through a shared
// object (e.g. (X,Y) and (Z,Y)) are still reached.
func getVariableDepth(terms []Term, vt *variableTable, v, root, recur int) int {
	vt.vars[v].marked = true

	result := depthUnset
	for _, t := range terms {
		subjID, subjOK := vt.subjectCompanion(t.Subj)
		if !subjOK || subjID != v {
			continue
		}
		predID, predOK := vt.subjectCompanion(t.Pred)
		var objID int
		var objOK bool
		if t.HasObj {
			objID, objOK = vt.subjectCompanion(t.Obj)
		}
		d := getDepthFromTerm(terms, vt, v, predID, predOK, objID, objOK, root, recur)
		if d < result {
			result = d
		}
	}
	if result == depthUnset {
		result = 0
	}
	vt.vars[v].depth = result

	crawlVariable(terms, vt, v, root, recur)
	for _, t := range terms {
		subjID, subjOK := vt.subjectCompanion(t.Subj)
		if !subjOK || subjID != v {
			continue
		}
		if predID, ok := vt.subjectCompanion(t.Pred); ok && predID != v {
			crawlVariable(terms, vt, predID, root, recur)
		}
		if t.HasObj {
			if objID, ok := vt.subjectCompanion(t.Obj); ok && objID != v {
				crawlVariable(terms, vt, objID, root, recur)
			}
		}
	}

	return vt.vars[v].depth
}

// crawlVariable visits every term touching v in any role and, for each
// co-occurring Table-kind variable not yet marked, recurses into depth
// assignment for it.
func crawlVariable(terms []Term, vt *variableTable, v, root, recur int) {
	for _, t := range terms {
		subjID, subjOK := vt.subjectCompanion(t.Subj)
		predID, predOK := vt.subjectCompanion(t.Pred)
		var objID int
		var objOK bool
		if t.HasObj {
			objID, objOK = vt.subjectCompanion(t.Obj)
		}

		touches := (subjOK && subjID == v) || (predOK && predID == v) || (objOK && objID == v)
		if !touches {
			continue
		}

		if predOK && predID != v && !vt.vars[predID].marked {
			getVariableDepth(terms, vt, predID, root, recur+1)
		}
		if subjOK && subjID != v && !vt.vars[subjID].marked {
			getVariableDepth(terms, vt, subjID, root, recur+1)
		}
		if objOK && objID != v && !vt.vars[objID].marked {
			getVariableDepth(terms, vt, objID, root, recur+1)
		}
	}
}

// sortVariables orders vt.vars by (kind, depth, occurs desc, id desc) and
// rewrites ids to match the new positions.
func sortVariables(vt *variableTable) {
	sort.SliceStable(vt.vars, func(i, j int) bool {
		a, b := vt.vars[i], vt.vars[j]
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		if a.occurs != b.occurs {
			return a.occurs > b.occurs
		}
		return a.id > b.id
	})

	vt.tableIdx = make(map[string]int, len(vt.tableIdx))
	vt.entityIdx = make(map[string]int, len(vt.entityIdx))
	for i := range vt.vars {
		vt.vars[i].id = i
		switch vt.vars[i].kind {
		case varKindTable:
			vt.tableIdx[vt.vars[i].name] = i
		case varKindEntity:
			vt.entityIdx[vt.vars[i].name] = i
		}
	}
}
