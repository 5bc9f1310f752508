package engine

import "akasha/internal/storage/pager"

// TransactionKind tags a physical Transaction as a scan or an insert.
type TransactionKind int

const (
	TxSelect TransactionKind = iota
	TxInsert
)

// ColumnValue pairs a resolved column id with the value an Insert writes
// into it.
type ColumnValue struct {
	ColumnID uint32
	Value    pager.Value
}

// Transaction is the Compiler's output: a resolved table name plus
// either a scan or an insert, followed by the physical op pipeline the
// Executor runs over it. Unrelated to ACID — see the glossary.
type Transaction struct {
	Kind  TransactionKind
	Table string
	Ops   []TableOp

	// TxInsert only.
	Values    []ColumnValue
	Returning []uint32 // nil means no RETURNING clause
}

// TableOpKind tags which fields of a TableOp are meaningful.
type TableOpKind int

const (
	OpFilter TableOpKind = iota
	OpPredicativeFilter
	OpProject
	OpLimit
	OpOffset
	OpMap
)

// RowPredicate is a compiled, first-class boxed predicate function: the
// Go stand-in for the "closure as (function-id, captured env) pair"
// modeled in the source design (§9).
type RowPredicate func(pager.Tuple) (bool, error)

// RowMapper replaces a tuple with the result of applying fn to it.
type RowMapper func(pager.Tuple) (pager.Tuple, error)

// TableOp is one stage of a compiled pipeline.
type TableOp struct {
	Kind TableOpKind

	// OpFilter — compare tuple[Column] against Value using CmpOp.
	Column uint32
	CmpOp  ComparisonOp
	Value  pager.Value

	// OpPredicativeFilter — a generic row predicate compiled from a
	// PredicateExpr tree too shapely to lower into a pure OpFilter.
	Predicate RowPredicate

	// OpProject — the ordered column ids to keep.
	Columns []uint32

	// OpLimit / OpOffset
	N int64

	// OpMap
	Mapper RowMapper
}

const (
	// CmpLike and CmpNotLike extend ComparisonOp (defined alongside the
	// logical predicate tree in ir.go) for the physical Filter operator
	// only: substring containment on Text, false for any other kind.
	// No built-in function in the transformer's registry produces a
	// LIKE predicate today, so these are reachable only from physical
	// IR assembled directly rather than through the Compiler — kept for
	// completeness with the operator's full specified behavior (§4.8).
	CmpLike ComparisonOp = iota + 100
	CmpNotLike
)
