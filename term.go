package ecsrule

// OperandKind classifies one slot (predicate, subject, or object) of a
// Term.
type OperandKind int

const (
	// OperandConst is a concrete, already-resolved id.
	OperandConst OperandKind = iota
	// OperandThis is the distinguished root placeholder "." — a subject
	// slot written this way shares its Table/Entity variable pair with
	// every other "." occurrence in the rule.
	OperandThis
	// OperandVar is a named variable.
	OperandVar
)

// Operand is one slot of a Term.
type Operand struct {
	Kind OperandKind
	ID   ID     // valid when Kind == OperandConst
	Name string // valid when Kind == OperandVar
}

// Const builds a concrete-id operand.
func Const(id ID) Operand { return Operand{Kind: OperandConst, ID: id} }

// ThisOperand builds the "." operand.
func ThisOperand() Operand { return Operand{Kind: OperandThis, Name: "."} }

// Var builds a named-variable operand.
func Var(name string) Operand { return Operand{Kind: OperandVar, Name: name} }

// isVariable reports whether the operand needs a variable slot at all
// (This counts as a variable named ".").
func (o Operand) isVariable() bool {
	return o.Kind == OperandThis || o.Kind == OperandVar
}

func (o Operand) variableName() string {
	if o.Kind == OperandThis {
		return "."
	}
	return o.Name
}

// Term is one conjunct of a rule expression: Predicate(Subject) or
// Predicate(Subject, Object).
type Term struct {
	Pred   Operand
	Subj   Operand
	Obj    Operand
	HasObj bool
}

// Unary builds a Predicate(Subject) term.
func Unary(pred, subj Operand) Term {
	return Term{Pred: pred, Subj: subj}
}

// Binary builds a Predicate(Subject, Object) term.
func Binary(pred, subj, obj Operand) Term {
	return Term{Pred: pred, Subj: subj, Obj: obj, HasObj: true}
}
