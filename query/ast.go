package query

/*
Package query provides the predicate representation consumed by the store's
QueryDocuments operation. Predicates are a tagged-variant AST built either
through the builder functions here or by parsing the filter language in
grammar.go. The store translates the AST to its own execution form; the
engine's contract never mentions how predicates are represented internally.
*/

////////////////////////////////////////////////////////////////////////////////

// Node is a predicate over document bodies.
type Node interface {
	node()
}

// CmpOp is a comparison operator.
type CmpOp string

const (
	OpEq   CmpOp = "="
	OpNe   CmpOp = "!="
	OpLt   CmpOp = "<"
	OpLte  CmpOp = "<="
	OpGt   CmpOp = ">"
	OpGte  CmpOp = ">="
	OpLike CmpOp = "~"
)

// CmpNode compares a body field against a literal. Field is a dotted path
// into the document body.
type CmpNode struct {
	Field string
	Op    CmpOp
	Value any
}

// AndNode is the conjunction of its children.
type AndNode struct {
	Children []Node
}

// OrNode is the disjunction of its children.
type OrNode struct {
	Children []Node
}

// NotNode negates its child.
type NotNode struct {
	Child Node
}

// ExistsNode is satisfied when the field is present in the body.
type ExistsNode struct {
	Field string
}

func (CmpNode) node()    {}
func (AndNode) node()    {}
func (OrNode) node()     {}
func (NotNode) node()    {}
func (ExistsNode) node() {}

// Eq matches documents whose field equals value.
func Eq(field string, value any) Node { return CmpNode{Field: field, Op: OpEq, Value: value} }

// Ne matches documents whose field does not equal value.
func Ne(field string, value any) Node { return CmpNode{Field: field, Op: OpNe, Value: value} }

// Lt matches documents whose field is less than value.
func Lt(field string, value any) Node { return CmpNode{Field: field, Op: OpLt, Value: value} }

// Lte matches documents whose field is at most value.
func Lte(field string, value any) Node { return CmpNode{Field: field, Op: OpLte, Value: value} }

// Gt matches documents whose field is greater than value.
func Gt(field string, value any) Node { return CmpNode{Field: field, Op: OpGt, Value: value} }

// Gte matches documents whose field is at least value.
func Gte(field string, value any) Node { return CmpNode{Field: field, Op: OpGte, Value: value} }

// Like matches documents whose field matches a SQL LIKE pattern.
func Like(field, pattern string) Node { return CmpNode{Field: field, Op: OpLike, Value: pattern} }

// Exists matches documents that have the field at all.
func Exists(field string) Node { return ExistsNode{Field: field} }

// And is the conjunction of the supplied predicates.
func And(children ...Node) Node { return AndNode{Children: children} }

// Or is the disjunction of the supplied predicates.
func Or(children ...Node) Node { return OrNode{Children: children} }

// Not negates a predicate.
func Not(child Node) Node { return NotNode{Child: child} }
