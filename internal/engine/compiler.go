package engine

import (
	"akasha/internal/storage"
	"akasha/internal/storage/pager"
)

// compileScope is the Compiler's let-binding environment: a cons-list of
// (name, not-yet-evaluated expr) pairs built by QueryBinding nodes. A
// Reference to a bound name recompiles the bound expression, as §4.7
// specifies, rather than caching a value — bindings in this IR are
// expression aliases, not variables.
type compileScope struct {
	name   string
	value  *QueryExpr
	parent *compileScope
}

func (s *compileScope) lookup(name string) (*QueryExpr, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.name == name {
			return sc.value, true
		}
	}
	return nil, false
}

// PlanOptimizer rewrites a LogicalTransaction before it's lowered to a
// physical plan. The default is IdentityOptimizer; it's a seam for a
// future cost-based or rule-based rewriter, not a promise that one
// exists yet.
type PlanOptimizer interface {
	Optimize(*LogicalTransaction) *LogicalTransaction
}

// IdentityOptimizer returns its input unchanged.
type IdentityOptimizer struct{}

// Optimize implements PlanOptimizer.
func (IdentityOptimizer) Optimize(plan *LogicalTransaction) *LogicalTransaction { return plan }

// Compiler lowers the logical QueryExpr IR into a physical Transaction,
// resolving every table and column name against the catalog along the
// way.
type Compiler struct {
	catalog   *storage.TableCatalog
	optimizer PlanOptimizer
}

// NewCompiler returns a Compiler resolving names against catalog, using
// IdentityOptimizer. Use NewCompilerWithOptimizer to install a rewriter.
func NewCompiler(catalog *storage.TableCatalog) *Compiler {
	return NewCompilerWithOptimizer(catalog, IdentityOptimizer{})
}

// NewCompilerWithOptimizer is NewCompiler with an explicit PlanOptimizer.
func NewCompilerWithOptimizer(catalog *storage.TableCatalog, optimizer PlanOptimizer) *Compiler {
	return &Compiler{catalog: catalog, optimizer: optimizer}
}

// Compile lowers expr into a physical Transaction. It returns a
// QueryError (never a panic) for every shape the logical IR can take,
// per the compiler-totality property in §8.
func (c *Compiler) Compile(expr *QueryExpr) (*Transaction, error) {
	return c.compileTop(expr, nil)
}

func (c *Compiler) compileTop(expr *QueryExpr, scope *compileScope) (*Transaction, error) {
	switch expr.Kind {
	case QueryBinding:
		inner := &compileScope{name: expr.BindingName, value: expr.BindingValue, parent: scope}
		return c.compileTop(expr.BindingBody, inner)
	case QueryReference:
		bound, ok := scope.lookup(expr.RefName)
		if !ok {
			return nil, SymbolNotFoundError{Name: expr.RefName}
		}
		return c.compileTop(bound, scope)
	case QueryTransaction:
		return c.compileTransaction(expr.Transaction, scope)
	default:
		return nil, NotATransactionError{}
	}
}

func (c *Compiler) compileTransaction(tx *LogicalTransaction, scope *compileScope) (*Transaction, error) {
	tx = c.optimizer.Optimize(tx)

	table, ok := c.catalog.GetTable(tx.Table)
	if !ok {
		return nil, TableNotFoundError{Name: tx.Table}
	}

	switch tx.Kind {
	case LogicalScan:
		ops, err := c.compileOps(tx.Ops, table)
		if err != nil {
			return nil, err
		}
		return &Transaction{Kind: TxSelect, Table: tx.Table, Ops: ops}, nil

	case LogicalInsert:
		if tx.Value == nil || tx.Value.Kind != QueryInstance {
			return nil, ExpectedRowError{}
		}
		values, err := c.compileRowValues(tx.Value, scope, table)
		if err != nil {
			return nil, err
		}
		returning, err := c.resolveColumnNames(tx.Returning, table)
		if err != nil {
			return nil, err
		}
		ops, err := c.compileOps(tx.Ops, table)
		if err != nil {
			return nil, err
		}
		return &Transaction{
			Kind: TxInsert, Table: tx.Table,
			Values: values, Returning: returning, Ops: ops,
		}, nil

	default:
		return nil, NotATransactionError{}
	}
}

func (c *Compiler) resolveColumnNames(names []string, table *storage.PhysicalTable) ([]uint32, error) {
	if names == nil {
		return nil, nil
	}
	ids := make([]uint32, len(names))
	for i, name := range names {
		id, ok := table.Info.GetColumnIndex(name)
		if !ok {
			return nil, ColumnNotFoundError{Column: name, Table: table.Name}
		}
		ids[i] = id
	}
	return ids, nil
}

func (c *Compiler) compileRowValues(instance *QueryExpr, scope *compileScope, table *storage.PhysicalTable) ([]ColumnValue, error) {
	values := make([]ColumnValue, 0, len(instance.InstanceFields))
	for _, f := range instance.InstanceFields {
		id, ok := table.Info.GetColumnIndex(f.Name)
		if !ok {
			return nil, ColumnNotFoundError{Column: f.Name, Table: table.Name}
		}
		v, err := c.evalConstExpr(f.Value, scope)
		if err != nil {
			return nil, err
		}
		values = append(values, ColumnValue{ColumnID: id, Value: v})
	}
	return values, nil
}

// evalConstExpr reduces the value side of an Instance field to a Value:
// literals directly, bound references by recompiling the binding,
// arithmetic on numeric literals, and a named error for the one shape
// §4.7/§7 call out explicitly — a row value nested inside another row.
func (c *Compiler) evalConstExpr(expr *QueryExpr, scope *compileScope) (pager.Value, error) {
	switch expr.Kind {
	case QueryLiteral:
		return expr.Literal, nil
	case QueryReference:
		bound, ok := scope.lookup(expr.RefName)
		if !ok {
			return pager.Value{}, SymbolNotFoundError{Name: expr.RefName}
		}
		return c.evalConstExpr(bound, scope)
	case QueryBinaryOp:
		left, err := c.evalConstExpr(expr.BinLeft, scope)
		if err != nil {
			return pager.Value{}, err
		}
		right, err := c.evalConstExpr(expr.BinRight, scope)
		if err != nil {
			return pager.Value{}, err
		}
		return evalArithmetic(expr.BinOp, left, right)
	case QueryInstance:
		return pager.Value{}, RowCannotBeEmbeddedIntoAnotherRowError{}
	default:
		return pager.Value{}, UnsupportedExpressionError{Description: "non-constant row field value"}
	}
}

func evalArithmetic(op string, l, r pager.Value) (pager.Value, error) {
	useFloat := l.Kind == pager.KindFloat32 || l.Kind == pager.KindFloat64 ||
		r.Kind == pager.KindFloat32 || r.Kind == pager.KindFloat64

	if useFloat {
		a, errA := asFloat64Operand(l)
		b, errB := asFloat64Operand(r)
		if errA != nil {
			return pager.Value{}, errA
		}
		if errB != nil {
			return pager.Value{}, errB
		}
		result, err := applyFloatOp(op, a, b)
		if err != nil {
			return pager.Value{}, err
		}
		return pager.Float64Value(result), nil
	}

	a, errA := asIntOperand(l)
	b, errB := asIntOperand(r)
	if errA != nil {
		return pager.Value{}, errA
	}
	if errB != nil {
		return pager.Value{}, errB
	}
	result, err := applyIntOp(op, a, b)
	if err != nil {
		return pager.Value{}, err
	}
	return pager.Int32Value(int32(result)), nil
}

func asFloat64Operand(v pager.Value) (float64, error) {
	switch v.Kind {
	case pager.KindInt32:
		return float64(v.Int32), nil
	case pager.KindInt64:
		return float64(v.Int64), nil
	case pager.KindFloat32:
		return float64(v.Float32), nil
	case pager.KindFloat64:
		return v.Float64, nil
	default:
		return 0, UnsupportedExpressionError{Description: "arithmetic on a non-numeric value"}
	}
}

func asIntOperand(v pager.Value) (int64, error) {
	switch v.Kind {
	case pager.KindInt32:
		return int64(v.Int32), nil
	case pager.KindInt64:
		return v.Int64, nil
	default:
		return 0, UnsupportedExpressionError{Description: "arithmetic on a non-numeric value"}
	}
}

func applyFloatOp(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		return a / b, nil
	default:
		return 0, UnsupportedOperatorError{Op: op}
	}
}

func applyIntOp(op string, a, b int64) (int64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, UnsupportedExpressionError{Description: "integer division by zero"}
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, UnsupportedExpressionError{Description: "integer division by zero"}
		}
		return a % b, nil
	default:
		return 0, UnsupportedOperatorError{Op: op}
	}
}

// compileOps lowers a LogicalTransaction's op chain into physical
// TableOps, resolving every column name against table's schema.
func (c *Compiler) compileOps(ops []LogicalOp, table *storage.PhysicalTable) ([]TableOp, error) {
	out := make([]TableOp, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case LogicalOpFilter:
			tableOp, err := c.compileFilter(op.Predicate, table)
			if err != nil {
				return nil, err
			}
			out = append(out, tableOp)
		case LogicalOpProject:
			ids, err := c.resolveColumnNames(op.Columns, table)
			if err != nil {
				return nil, err
			}
			out = append(out, TableOp{Kind: OpProject, Columns: ids})
		case LogicalOpLimit:
			out = append(out, TableOp{Kind: OpLimit, N: op.N})
		case LogicalOpOffset:
			out = append(out, TableOp{Kind: OpOffset, N: op.N})
		default:
			return nil, NotATransactionError{}
		}
	}
	return out, nil
}

// compileFilter lowers a single Filter's predicate tree. A pure
// `Column OP Literal` (in either argument order) becomes a column-
// indexed OpFilter the executor evaluates without a function call;
// anything else compiles to a general OpPredicativeFilter closure (the
// real lowering from PredicateExpr to a row function the design notes
// in §9 leave as a follow-up — implemented here per that section's own
// recommendation).
func (c *Compiler) compileFilter(pred *PredicateExpr, table *storage.PhysicalTable) (TableOp, error) {
	if pred.Kind == PredCompare {
		if op, ok, err := c.tryPureColumnFilter(pred, table); ok || err != nil {
			return op, err
		}
	}
	fn, err := c.compilePredicate(pred, table)
	if err != nil {
		return TableOp{}, err
	}
	return TableOp{Kind: OpPredicativeFilter, Predicate: fn}, nil
}

func (c *Compiler) tryPureColumnFilter(pred *PredicateExpr, table *storage.PhysicalTable) (TableOp, bool, error) {
	switch {
	case pred.Left.Kind == QueryColumn && pred.Right.Kind == QueryLiteral:
		id, ok := table.Info.GetColumnIndex(pred.Left.ColumnName)
		if !ok {
			return TableOp{}, false, ColumnNotFoundError{Column: pred.Left.ColumnName, Table: table.Name}
		}
		return TableOp{Kind: OpFilter, Column: id, CmpOp: pred.CmpOp, Value: pred.Right.Literal}, true, nil
	case pred.Right.Kind == QueryColumn && pred.Left.Kind == QueryLiteral:
		id, ok := table.Info.GetColumnIndex(pred.Right.ColumnName)
		if !ok {
			return TableOp{}, false, ColumnNotFoundError{Column: pred.Right.ColumnName, Table: table.Name}
		}
		return TableOp{Kind: OpFilter, Column: id, CmpOp: flipComparison(pred.CmpOp), Value: pred.Left.Literal}, true, nil
	default:
		return TableOp{}, false, nil
	}
}

func flipComparison(op ComparisonOp) ComparisonOp {
	switch op {
	case CmpLt:
		return CmpGt
	case CmpLe:
		return CmpGe
	case CmpGt:
		return CmpLt
	case CmpGe:
		return CmpLe
	default:
		return op // Eq and Ne are symmetric
	}
}

// rowValueFn evaluates an expression against a tuple at execution time —
// a Column looks itself up by index, a Literal ignores the tuple.
type rowValueFn func(pager.Tuple) (pager.Value, error)

func (c *Compiler) compileRowValue(expr *QueryExpr, table *storage.PhysicalTable) (rowValueFn, error) {
	switch expr.Kind {
	case QueryColumn:
		id, ok := table.Info.GetColumnIndex(expr.ColumnName)
		if !ok {
			return nil, ColumnNotFoundError{Column: expr.ColumnName, Table: table.Name}
		}
		return func(t pager.Tuple) (pager.Value, error) { return t.Values[id], nil }, nil
	case QueryLiteral:
		v := expr.Literal
		return func(pager.Tuple) (pager.Value, error) { return v, nil }, nil
	default:
		return nil, UnsupportedExpressionError{Description: "non-column, non-literal operand in predicate"}
	}
}

// compilePredicate recursively lowers a PredicateExpr tree into a
// RowPredicate closure, short-circuiting And/Or as the source design
// calls for.
func (c *Compiler) compilePredicate(pred *PredicateExpr, table *storage.PhysicalTable) (RowPredicate, error) {
	switch pred.Kind {
	case PredCompare:
		left, err := c.compileRowValue(pred.Left, table)
		if err != nil {
			return nil, err
		}
		right, err := c.compileRowValue(pred.Right, table)
		if err != nil {
			return nil, err
		}
		cmp := pred.CmpOp
		return func(t pager.Tuple) (bool, error) {
			lv, err := left(t)
			if err != nil {
				return false, err
			}
			rv, err := right(t)
			if err != nil {
				return false, err
			}
			return evalComparison(cmp, lv, rv), nil
		}, nil

	case PredAnd:
		fns, err := c.compilePredicateChildren(pred.Children, table)
		if err != nil {
			return nil, err
		}
		return func(t pager.Tuple) (bool, error) {
			for _, fn := range fns {
				ok, err := fn(t)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		}, nil

	case PredOr:
		fns, err := c.compilePredicateChildren(pred.Children, table)
		if err != nil {
			return nil, err
		}
		return func(t pager.Tuple) (bool, error) {
			for _, fn := range fns {
				ok, err := fn(t)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}, nil

	case PredNot:
		operand, err := c.compilePredicate(pred.Operand, table)
		if err != nil {
			return nil, err
		}
		return func(t pager.Tuple) (bool, error) {
			ok, err := operand(t)
			return !ok, err
		}, nil

	case PredIsNull:
		target, err := c.compileRowValue(pred.Target, table)
		if err != nil {
			return nil, err
		}
		return func(t pager.Tuple) (bool, error) {
			v, err := target(t)
			if err != nil {
				return false, err
			}
			return v.IsNull(), nil
		}, nil

	case PredIn:
		target, err := c.compileRowValue(pred.InTarget, table)
		if err != nil {
			return nil, err
		}
		items := make([]rowValueFn, len(pred.InItems))
		for i, item := range pred.InItems {
			fn, err := c.compileRowValue(item, table)
			if err != nil {
				return nil, err
			}
			items[i] = fn
		}
		return func(t pager.Tuple) (bool, error) {
			v, err := target(t)
			if err != nil {
				return false, err
			}
			for _, fn := range items {
				iv, err := fn(t)
				if err != nil {
					return false, err
				}
				if v.Compare(iv) == 0 {
					return true, nil
				}
			}
			return false, nil
		}, nil

	case PredExists:
		return nil, UnsupportedExpressionError{Description: "exists subquery (no subquery support in this core)"}

	default:
		return nil, UnsupportedExpressionError{Description: "predicate kind"}
	}
}

func (c *Compiler) compilePredicateChildren(children []*PredicateExpr, table *storage.PhysicalTable) ([]RowPredicate, error) {
	fns := make([]RowPredicate, len(children))
	for i, ch := range children {
		fn, err := c.compilePredicate(ch, table)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return fns, nil
}

func evalComparison(op ComparisonOp, a, b pager.Value) bool {
	cmp := a.Compare(b)
	switch op {
	case CmpEq:
		return cmp == 0
	case CmpNe:
		return cmp != 0
	case CmpLt:
		return cmp < 0
	case CmpLe:
		return cmp <= 0
	case CmpGt:
		return cmp > 0
	case CmpGe:
		return cmp >= 0
	case CmpLike:
		return likeMatch(a, b, false)
	case CmpNotLike:
		return likeMatch(a, b, true)
	default:
		return false
	}
}
