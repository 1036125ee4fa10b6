package ecsrule

// register is one cell of a frame's register file: a tagged union of an
// id (used for pair matching and for values that never need a live
// Entity's version, e.g. component/tag ids), a table pointer (Table-kind
// variables), and a full Entity (Entity-kind variables bound via Each,
// which do need a version to slice back into the world later).
type register struct {
	entity       ID
	table        *Table
	entityVal    Entity
	hasEntityVal bool
}

type frame struct {
	regs []register
	cols []int
}

func newFrame(variableCount, columnCount int) frame {
	f := frame{regs: make([]register, variableCount), cols: make([]int, columnCount)}
	for i := range f.regs {
		f.regs[i].entity = Wildcard
	}
	return f
}

// opScratch is the resumable state private to one operation across redo
// calls. Its fields are a plain union over what each op kind needs; the
// operation's own kind already disambiguates which fields are live, so no
// separate tag is necessary.
//
// Dfs's fields implement a two-level traversal: dfsCandidates/dfsOuterIdx
// walk every table that carries the predicate at all (one per distinct
// subject binding), and for each, dfsObjStack/dfsVisited run a depth-first
// walk of the objects reachable from that subject through the predicate's
// transitive closure.
type opScratch struct {
	selectIdx int

	dfsCandidates *tableSet
	dfsOuterIdx   int
	dfsTable      *Table
	dfsObjStack   []ID
	dfsVisited    map[ID]bool

	eachRow int
}

// Iterator drives one evaluation of a Rule against its World, yielding one
// result per Next call.
type Iterator struct {
	rule    *Rule
	op      int
	redo    bool
	done    bool
	frames  []frame
	scratch []opScratch

	resultBoolean bool
	resultTable   *Table
	resultRow     int

	// matched holds, per term column, the id that matched at that
	// position on the currently active path — the rule solver's
	// component array, written by commitTableOp/withTransitiveProbe and
	// read back by MatchedID. Unlike frame.cols (copied forward frame to
	// frame so a stale value from an abandoned branch never survives a
	// backtrack), matched is a single flat array: each column's op always
	// re-runs, and therefore rewrites its slot, before the VM is allowed
	// to advance past it again.
	matched []ID
}

// Iter allocates an Iterator over r, with every register initialized to
// Wildcard and positioned at operation 0.
func (r *Rule) Iter() *Iterator {
	it := &Iterator{
		rule:      r,
		op:        0,
		frames:    make([]frame, len(r.operations)),
		scratch:   make([]opScratch, len(r.operations)),
		resultRow: -1,
		matched:   make([]ID, r.columnCount),
	}
	for i := range it.frames {
		it.frames[i] = newFrame(r.variableCount, r.columnCount)
	}
	return it
}

// Next runs the VM until a Yield is reached (returns true, with a result
// available) or the program is exhausted (returns false).
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	for {
		if it.op < 0 {
			it.done = true
			return false
		}
		op := it.rule.operations[it.op]
		if op.kind == opYield && !it.redo {
			it.materialize(it.op)
			it.redo = true
			return true
		}
		if it.eval(op, it.op, it.redo) {
			it.pushFrame(it.op)
			it.op = op.onOk
			it.redo = false
		} else {
			it.op = op.onFail
			it.redo = true
		}
	}
}

func (it *Iterator) pushFrame(cur int) {
	if cur+1 >= len(it.frames) {
		return
	}
	src, dst := it.frames[cur], it.frames[cur+1]
	copy(dst.regs, src.regs)
	copy(dst.cols, src.cols)
}

func (it *Iterator) eval(op operation, idx int, redo bool) bool {
	switch op.kind {
	case opInput:
		return !redo
	case opSelect:
		return it.evalSelect(op, idx, redo)
	case opDfs:
		return it.evalDfs(op, idx, redo)
	case opWith:
		return it.evalWith(op, idx, redo)
	case opEach:
		return it.evalEach(op, idx, redo)
	case opYield:
		return false
	default:
		return false
	}
}

func (it *Iterator) evalSelect(op operation, idx int, redo bool) bool {
	w := it.rule.world
	regs := it.frames[idx-1].regs
	f := pairToFilter(regs, op.param)

	set := w.tableSetFor(f.mask)
	if set == nil {
		return false
	}
	sc := &it.scratch[idx]

	if !redo {
		sc.selectIdx = 0
	} else if f.wildcard {
		rec := set.records[sc.selectIdx]
		if col := findNextMatch(rec.Table.Type(), it.frames[idx].cols[op.column]+1, &f); col >= 0 {
			return it.commitTableOp(op, idx, &f, rec.Table, col)
		}
		sc.selectIdx++
	} else {
		sc.selectIdx++
	}

	for sc.selectIdx < len(set.records) {
		rec := set.records[sc.selectIdx]
		if rec.Table.Count() == 0 {
			sc.selectIdx++
			continue
		}
		if col := findNextMatch(rec.Table.Type(), rec.Column, &f); col >= 0 {
			return it.commitTableOp(op, idx, &f, rec.Table, col)
		}
		sc.selectIdx++
	}
	return false
}

func (it *Iterator) commitTableOp(op operation, idx int, f *matchFilter, table *Table, col int) bool {
	regs := it.frames[idx].regs
	if op.hasOut {
		regs[op.rOut].table = table
	}
	reifyVariables(regs, f, table.Type(), col)
	it.frames[idx].cols[op.column] = col
	it.matched[op.column] = table.Type()[col]
	return true
}

func (it *Iterator) withInputTable(op operation, idx int) *Table {
	w := it.rule.world
	if !op.hasIn {
		return w.TableFromEntity(w.entityFromID(op.subject))
	}
	reg := it.frames[idx].regs[op.rIn]
	if reg.table != nil {
		return reg.table
	}
	if reg.hasEntityVal {
		return w.TableFromEntity(reg.entityVal)
	}
	return w.TableFromEntity(w.entityFromID(reg.entity))
}

func (it *Iterator) evalWith(op operation, idx int, redo bool) bool {
	w := it.rule.world
	regs := it.frames[idx-1].regs
	f := pairToFilter(regs, op.param)

	table := it.withInputTable(op, idx)
	if table == nil {
		return false
	}

	if redo {
		if !f.wildcard {
			return false
		}
		if col := findNextMatch(table.Type(), it.frames[idx].cols[op.column]+1, &f); col >= 0 {
			return it.commitTableOp(op, idx, &f, table, col)
		}
		return false
	}

	ts := w.tableSetFor(f.mask)
	if ts != nil {
		if rec, ok := ts.find(table.index); ok {
			if col := findNextMatch(table.Type(), rec.Column, &f); col >= 0 {
				return it.commitTableOp(op, idx, &f, table, col)
			}
		}
	}
	return it.withTransitiveProbe(op, idx, &f, table)
}

// withTransitiveProbe handles a With whose direct table-set probe missed:
// if the predicate is transitive and the object is concrete, check whether
// table's entities reach it through the relation's closure instead of a
// direct fact.
func (it *Iterator) withTransitiveProbe(op operation, idx int, f *matchFilter, table *Table) bool {
	if !op.param.transitive || f.objWildcard {
		return false
	}
	obj := Lo(f.mask)
	if obj == Wildcard {
		return false
	}
	if it.testIfTransitive(it.rule.world, op.param.predConst, obj, table, map[int]bool{}) {
		it.frames[idx].cols[op.column] = -1
		it.matched[op.column] = Pair(op.param.predConst, obj)
		return true
	}
	return false
}

// testIfTransitive reports whether table's entities reach obj via pred,
// directly or through any chain of pred facts. visited guards against
// cycles (a pred b, b pred a) by refusing to revisit any table already
// visited during this search.
func (it *Iterator) testIfTransitive(w *World, pred, obj ID, table *Table, visited map[int]bool) bool {
	if visited[table.index] {
		return false
	}
	visited[table.index] = true

	if exact := w.tableSetFor(Pair(pred, obj)); exact != nil {
		if _, ok := exact.find(table.index); ok {
			return true
		}
	}

	allMask := Pair(pred, Wildcard)
	allSet := w.tableSetFor(allMask)
	if allSet == nil {
		return false
	}
	rec, ok := allSet.find(table.index)
	if !ok {
		return false
	}

	var af matchFilter
	setFilterExprMask(&af, allMask)
	typ := table.Type()
	for col := rec.Column; col >= 0 && col < len(typ); col = findNextMatch(typ, col+1, &af) {
		if (typ[col] & af.exprMask) != af.exprMatch {
			break
		}
		o := Lo(typ[col])
		if o == obj {
			return true
		}
		if next := w.TableFromEntity(w.entityFromID(o)); next != nil {
			if it.testIfTransitive(w, pred, obj, next, visited) {
				return true
			}
		}
	}
	return false
}

// directObjects returns the objects table carries directly under pred, in
// type order.
func directObjects(table *Table, pred ID) []ID {
	typ := table.Type()
	var af matchFilter
	setFilterExprMask(&af, Pair(pred, Wildcard))
	var objs []ID
	for col := findNextMatch(typ, 0, &af); col >= 0; col = findNextMatch(typ, col+1, &af) {
		objs = append(objs, Lo(typ[col]))
	}
	return objs
}

// evalDfs walks every table that carries pred at all — one per distinct
// subject binding — and for each, depth-first-enumerates the objects
// reachable through pred's transitive closure (the object itself, then
// every object reachable from it, and so on), yielding one (subject
// table, object) result per reachable object. dfsVisited bounds each
// subject's walk to a simple path, so a predicate cycle (a Knows b, b
// Knows a) still terminates and never yields the same object twice for
// the same subject.
//
// When the term's object slot is already concrete, this collapses to a
// single reachability check per candidate via testIfTransitive instead of
// enumerating every reachable object.
func (it *Iterator) evalDfs(op operation, idx int, redo bool) bool {
	w := it.rule.world
	regs := it.frames[idx].regs
	pred := op.param.predConst

	sc := &it.scratch[idx]
	if !redo {
		sc.dfsCandidates = w.tableSetFor(Pair(pred, Wildcard))
		sc.dfsOuterIdx = 0
		sc.dfsTable = nil
		sc.dfsObjStack = nil
		sc.dfsVisited = nil
	}
	if sc.dfsCandidates == nil {
		return false
	}

	// The object's binding is read from the frame before this op: on redo,
	// regs already holds the object this op itself bound last time.
	objWildcard := true
	var target ID
	if op.param.hasObj {
		if op.param.objIsVar {
			target = it.frames[idx-1].regs[op.param.objVar].entity
		} else {
			target = op.param.objConst
		}
		objWildcard = target == Wildcard
	}

	if !objWildcard {
		for sc.dfsOuterIdx < len(sc.dfsCandidates.records) {
			rec := sc.dfsCandidates.records[sc.dfsOuterIdx]
			sc.dfsOuterIdx++
			if rec.Table.Count() == 0 {
				continue
			}
			if it.testIfTransitive(w, pred, target, rec.Table, map[int]bool{}) {
				regs[op.rOut].table = rec.Table
				it.frames[idx].cols[op.column] = -1
				it.matched[op.column] = Pair(pred, target)
				return true
			}
		}
		return false
	}

	for {
		for len(sc.dfsObjStack) > 0 {
			last := len(sc.dfsObjStack) - 1
			obj := sc.dfsObjStack[last]
			sc.dfsObjStack = sc.dfsObjStack[:last]

			regs[op.rOut].table = sc.dfsTable
			if op.param.objIsVar {
				regs[op.param.objVar].entity = obj
			}
			it.frames[idx].cols[op.column] = -1
			it.matched[op.column] = Pair(pred, obj)

			if next := w.TableFromEntity(w.entityFromID(obj)); next != nil {
				for _, o := range directObjects(next, pred) {
					if !sc.dfsVisited[o] {
						sc.dfsVisited[o] = true
						sc.dfsObjStack = append(sc.dfsObjStack, o)
					}
				}
			}
			return true
		}

		for sc.dfsOuterIdx < len(sc.dfsCandidates.records) {
			rec := sc.dfsCandidates.records[sc.dfsOuterIdx]
			sc.dfsOuterIdx++
			if rec.Table.Count() == 0 {
				continue
			}
			sc.dfsTable = rec.Table
			sc.dfsVisited = map[ID]bool{}
			sc.dfsObjStack = nil
			for _, o := range directObjects(rec.Table, pred) {
				if !sc.dfsVisited[o] {
					sc.dfsVisited[o] = true
					sc.dfsObjStack = append(sc.dfsObjStack, o)
				}
			}
			if len(sc.dfsObjStack) > 0 {
				break
			}
		}
		if len(sc.dfsObjStack) == 0 {
			return false
		}
	}
}

func (it *Iterator) evalEach(op operation, idx int, redo bool) bool {
	regs := it.frames[idx].regs
	table := regs[op.rIn].table
	if table == nil {
		return false
	}
	sc := &it.scratch[idx]
	if !redo {
		sc.eachRow = -1
	}
	for {
		sc.eachRow++
		if sc.eachRow >= table.Count() {
			return false
		}
		e := table.Entities()[sc.eachRow]
		val := EntityID(e)
		if val == Wildcard || val == This {
			continue
		}
		regs[op.rOut].entity = val
		regs[op.rOut].entityVal = e
		regs[op.rOut].hasEntityVal = true
		return true
	}
}

func (it *Iterator) materialize(opIdx int) {
	f := it.frames[opIdx]
	r := it.rule
	if r.yieldVar == regNone {
		it.resultBoolean = true
		it.resultTable = nil
		it.resultRow = -1
		return
	}
	it.resultBoolean = false
	reg := f.regs[r.yieldVar]
	if r.yieldIsEntity {
		if reg.hasEntityVal {
			it.resultTable = r.world.TableFromEntity(reg.entityVal)
			_, row, _ := r.world.RecordOf(reg.entityVal)
			it.resultRow = row
		} else {
			e := r.world.entityFromID(reg.entity)
			it.resultTable = r.world.TableFromEntity(e)
			_, row, _ := r.world.RecordOf(e)
			it.resultRow = row
		}
		return
	}
	it.resultTable = reg.table
	it.resultRow = -1
}

// IsBoolean reports whether the rule has no "." variable, so a result
// signals only that all terms held, without naming an entity or table.
func (it *Iterator) IsBoolean() bool { return it.resultBoolean }

// Table returns the current result's table: the whole matching table when
// the rule yields a Table-kind variable, or the single table containing
// the current Entity-kind result.
func (it *Iterator) Table() *Table { return it.resultTable }

// Row returns the current result's row within Table(), or -1 when the
// whole table is the result (a Table-kind yield) or the result is boolean.
func (it *Iterator) Row() int { return it.resultRow }

// Count returns the number of rows the current result covers: 1 for an
// Entity-kind yield, 0 for a boolean yield, the table's row count for a
// Table-kind yield.
func (it *Iterator) Count() int {
	if it.resultTable == nil {
		return 0
	}
	if it.resultRow >= 0 {
		return 1
	}
	return it.resultTable.Count()
}

// Variable reads the current value of an Entity-kind variable from the
// frame that was active when the program last reached Yield. Returns
// Wildcard for a Table-kind variable or an id out of range.
func (it *Iterator) Variable(varID int) ID {
	if varID < 0 || varID >= len(it.rule.vars) {
		return Wildcard
	}
	f := it.frames[len(it.frames)-1]
	return f.regs[varID].entity
}

// ColumnCount returns the number of term columns the current result
// carries matched-id/column information for, one per term in the rule's
// term list.
func (it *Iterator) ColumnCount() int { return len(it.matched) }

// MatchedID returns the id that matched term column col on the currently
// active result: the concrete component, relation pair, or entity id a
// Select/With/Dfs op bound at that position. This is what lets a caller
// running a wildcard-predicate or wildcard-object rule learn which id
// actually matched, since the term itself only names a variable.
func (it *Iterator) MatchedID(col int) ID {
	if col < 0 || col >= len(it.matched) {
		return Wildcard
	}
	return it.matched[col]
}

// Column returns the 1-based index of term column col within Table()'s
// type array, or 0 if col matched through a transitive closure rather
// than a literal table column. The VM tracks columns 0-based internally
// (frame.cols); like the source this wraps, indices are incremented by
// one only at the point they're published to a caller.
func (it *Iterator) Column(col int) int {
	f := it.frames[len(it.frames)-1]
	if col < 0 || col >= len(f.cols) {
		return 0
	}
	return f.cols[col] + 1
}
