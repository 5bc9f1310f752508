// Package engine turns the external AST into a logical query
// representation, compiles that into a physical operator pipeline, and
// executes the pipeline as a lazy stream of tuples.
//
// Two IR levels share the name "Transaction" in the source material this
// is grounded on: a logical one (scan-or-insert plus not-yet-lowered
// ops, still carrying expression trees) and a physical one (a resolved
// table plus column-indexed TableOps). They're named LogicalTransaction
// and Transaction (physical.go) here to keep them apart in Go, where the
// two can't share an identifier the way two enum variants in different
// types can.
package engine

import "akasha/internal/storage/pager"

// QueryExprKind tags which fields of a QueryExpr are meaningful.
type QueryExprKind int

const (
	QueryTransaction QueryExprKind = iota
	QueryLambda
	QueryReference
	QueryLiteral
	QueryColumn
	QueryBinaryOp
	QueryApply
	QueryBinding
	QueryPredicate
	QueryInstance
	QueryTuple
	QueryBuiltInFunction
	QueryBind
)

// InstanceField is one named value in an Instance (record literal)
// logical expression.
type InstanceField struct {
	Name  string
	Value *QueryExpr
}

// QueryExpr is the logical IR: a tagged union produced by the
// Transformer and consumed by the Compiler.
type QueryExpr struct {
	Kind QueryExprKind

	// QueryTransaction
	Transaction *LogicalTransaction

	// QueryLambda
	LambdaParams []string
	LambdaBody   *QueryExpr

	// QueryReference
	RefName string

	// QueryLiteral
	Literal pager.Value

	// QueryColumn — a row's field, resolved by the transformer from a
	// filter lambda's field access. Not yet an index: the compiler
	// resolves the name against the target table's schema.
	ColumnName string

	// QueryBinaryOp
	BinOp    string
	BinLeft  *QueryExpr
	BinRight *QueryExpr

	// QueryApply — func(args...)
	ApplyFunc *QueryExpr
	ApplyArgs []*QueryExpr

	// QueryBinding — let name = value; body
	BindingName  string
	BindingValue *QueryExpr
	BindingBody  *QueryExpr

	// QueryPredicate
	Predicate *PredicateExpr

	// QueryInstance
	InstanceFields []InstanceField

	// QueryTuple
	TupleItems []*QueryExpr

	// QueryBuiltInFunction — a reference to a registered built-in,
	// produced when a bare name in a Reference resolves to the built-in
	// registry instead of a scope binding.
	BuiltInName string

	// QueryBind — the pipeline operator's literal IR shape. The
	// Transformer never actually constructs this: `|>` is defined as
	// syntactic sugar (§4.6) and is rewritten into QueryApply at
	// transform time. The variant is kept in the union for
	// completeness with the sum type's full enumeration and for any
	// caller that wants to build IR directly rather than through the
	// Transformer.
	BindInput *QueryExpr
	BindFunc  *QueryExpr
}

// LogicalTransactionKind distinguishes the two things a query can do.
type LogicalTransactionKind int

const (
	LogicalScan LogicalTransactionKind = iota
	LogicalInsert
)

// LogicalOpKind tags a not-yet-lowered transaction op.
type LogicalOpKind int

const (
	LogicalOpFilter LogicalOpKind = iota
	LogicalOpProject
	LogicalOpLimit
	LogicalOpOffset
)

// LogicalOp is one stage appended to a LogicalTransaction by a built-in
// (filter/project/limit/offset).
type LogicalOp struct {
	Kind LogicalOpKind

	// LogicalOpFilter — the lambda's body, already reduced to a
	// predicate tree by transformToPredicate.
	Predicate *PredicateExpr

	// LogicalOpProject
	Columns []string

	// LogicalOpLimit / LogicalOpOffset
	N int64
}

// LogicalTransaction is the payload of a QueryTransaction node: either a
// scan of a table or an insert into one, plus the chain of ops appended
// by filter/project/limit/offset calls.
type LogicalTransaction struct {
	Kind  LogicalTransactionKind
	Table string

	// LogicalInsert only.
	Value     *QueryExpr // an Instance expression
	Returning []string   // nil means "no RETURNING clause"

	Ops []LogicalOp
}

// ComparisonOp is a predicate's comparison operator.
type ComparisonOp int

const (
	CmpEq ComparisonOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// PredicateKind tags which fields of a PredicateExpr are meaningful.
type PredicateKind int

const (
	PredCompare PredicateKind = iota
	PredAnd
	PredOr
	PredNot
	PredIsNull
	PredIn
	PredExists
)

// PredicateExpr is a tree of comparisons and boolean connectives,
// produced from a filter lambda's body.
type PredicateExpr struct {
	Kind PredicateKind

	// PredCompare
	CmpOp ComparisonOp
	Left  *QueryExpr
	Right *QueryExpr

	// PredAnd / PredOr
	Children []*PredicateExpr

	// PredNot
	Operand *PredicateExpr

	// PredIsNull
	Target *QueryExpr

	// PredIn
	InTarget *QueryExpr
	InItems  []*QueryExpr

	// PredExists — no subquery support exists in this core; retained
	// for completeness with the tree's full shape. The transformer
	// never produces it and the compiler rejects it.
	Sub *QueryExpr
}
