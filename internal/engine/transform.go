package engine

import (
	"fmt"
	"strconv"

	"akasha/internal/ast"
	"akasha/internal/storage/pager"
)

type builtinSpec struct {
	arity int
	lower func(t *Transformer, args []*ast.Expr) (*QueryExpr, error)
}

// Transformer lowers an external ast.Expr tree into the logical
// QueryExpr IR. It tracks a lexical scope stack for `let` bindings, the
// name of the current row variable while inside a filter lambda (so
// `r.field` resolves to a Column), and the registry of built-in
// transactional functions.
type Transformer struct {
	scopeNames []string
	rowVars    []string
	builtins   map[string]builtinSpec
}

// NewTransformer returns a Transformer with the standard built-in
// registry installed.
func NewTransformer() *Transformer {
	t := &Transformer{builtins: make(map[string]builtinSpec)}
	t.registerBuiltins()
	return t
}

func (t *Transformer) registerBuiltins() {
	t.builtins["scan"] = builtinSpec{arity: 1, lower: lowerScan}
	t.builtins["filter"] = builtinSpec{arity: 2, lower: lowerFilter}
	t.builtins["insert_"] = builtinSpec{arity: 2, lower: lowerInsertNoReturning}
	t.builtins["insert"] = builtinSpec{arity: 3, lower: lowerInsertReturning}
	t.builtins["project"] = builtinSpec{arity: 2, lower: lowerProject}
	t.builtins["limit"] = builtinSpec{arity: 2, lower: lowerLimit}
	t.builtins["offset"] = builtinSpec{arity: 2, lower: lowerOffset}
}

// Transform lowers the root of an AST into a QueryExpr.
func (t *Transformer) Transform(e *ast.Expr) (*QueryExpr, error) {
	return t.transformExpr(e)
}

func (t *Transformer) pushScopeName(name string) { t.scopeNames = append(t.scopeNames, name) }
func (t *Transformer) popScopeName()              { t.scopeNames = t.scopeNames[:len(t.scopeNames)-1] }

func (t *Transformer) pushRowVar(name string) { t.rowVars = append(t.rowVars, name) }
func (t *Transformer) popRowVar()             { t.rowVars = t.rowVars[:len(t.rowVars)-1] }

func (t *Transformer) currentRowVar() string {
	if len(t.rowVars) == 0 {
		return ""
	}
	return t.rowVars[len(t.rowVars)-1]
}

func (t *Transformer) isBoundName(name string) bool {
	for i := len(t.scopeNames) - 1; i >= 0; i-- {
		if t.scopeNames[i] == name {
			return true
		}
	}
	return false
}

func (t *Transformer) transformExpr(e *ast.Expr) (*QueryExpr, error) {
	switch e.Kind {
	case ast.Reference:
		return t.resolveReference(e.Name), nil
	case ast.Number:
		return t.transformNumber(e.Name)
	case ast.StringLit:
		return &QueryExpr{Kind: QueryLiteral, Literal: pager.TextValue(e.Name)}, nil
	case ast.Bool:
		return &QueryExpr{Kind: QueryLiteral, Literal: pager.BoolValue(e.BoolValue)}, nil
	case ast.FieldAccess:
		return t.transformFieldAccess(e)
	case ast.UnaryOp:
		return nil, UnsupportedOperatorError{Op: e.Op}
	case ast.BinaryOp:
		return t.transformBinaryOp(e)
	case ast.FunctionCall:
		return t.transformFunctionCall(e)
	case ast.Tuple:
		items := make([]*QueryExpr, len(e.Items))
		for i, it := range e.Items {
			v, err := t.transformExpr(it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return &QueryExpr{Kind: QueryTuple, TupleItems: items}, nil
	case ast.Block:
		return t.transformBlock(e)
	case ast.Lambda:
		return t.transformLambda(e)
	case ast.Instance:
		return t.transformInstance(e)
	case ast.Let:
		return t.transformLet(e)
	default:
		return nil, UnsupportedExpressionError{Description: e.Kind.String()}
	}
}

// resolveReference implements "scope stack, then built-in registry, else
// a free reference" (§4.6). A free reference is not an error here: it
// covers bare identifiers used as table names in scan/insert argument
// position, which the compiler (or the table-name extraction helpers
// below) interpret directly rather than through variable lookup.
func (t *Transformer) resolveReference(name string) *QueryExpr {
	if t.isBoundName(name) {
		return &QueryExpr{Kind: QueryReference, RefName: name}
	}
	if _, ok := t.builtins[name]; ok {
		return &QueryExpr{Kind: QueryBuiltInFunction, BuiltInName: name}
	}
	return &QueryExpr{Kind: QueryReference, RefName: name}
}

func parseNumberLiteral(text string) (pager.Value, error) {
	if i, err := strconv.ParseInt(text, 10, 32); err == nil {
		return pager.Int32Value(int32(i)), nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return pager.Float64Value(f), nil
	}
	return pager.Value{}, InvalidNumberError{Text: text}
}

func (t *Transformer) transformNumber(text string) (*QueryExpr, error) {
	v, err := parseNumberLiteral(text)
	if err != nil {
		return nil, err
	}
	return &QueryExpr{Kind: QueryLiteral, Literal: v}, nil
}

func (t *Transformer) transformFieldAccess(e *ast.Expr) (*QueryExpr, error) {
	if e.Base.Kind == ast.Reference && e.Base.Name == t.currentRowVar() && t.currentRowVar() != "" {
		return &QueryExpr{Kind: QueryColumn, ColumnName: e.Field}, nil
	}
	return nil, InvalidFieldAccessError{}
}

func (t *Transformer) transformBinaryOp(e *ast.Expr) (*QueryExpr, error) {
	if e.Op == "|>" {
		return t.desugarPipe(e.Left, e.Right)
	}
	left, err := t.transformExpr(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := t.transformExpr(e.Right)
	if err != nil {
		return nil, err
	}
	return &QueryExpr{Kind: QueryBinaryOp, BinOp: e.Op, BinLeft: left, BinRight: right}, nil
}

// desugarPipe implements `a |> f` as pure syntax: `f(args..., a)` when f
// is itself a call, `f(a)` when f is bare. No Bind node is ever built.
func (t *Transformer) desugarPipe(a, f *ast.Expr) (*QueryExpr, error) {
	if f.Kind == ast.FunctionCall {
		args := make([]*ast.Expr, 0, len(f.Args)+1)
		args = append(args, f.Args...)
		args = append(args, a)
		return t.transformFunctionCall(ast.NewFunctionCall(f.Func, args...))
	}
	return t.transformFunctionCall(ast.NewFunctionCall(f, a))
}

func (t *Transformer) transformFunctionCall(e *ast.Expr) (*QueryExpr, error) {
	if e.Func.Kind == ast.Reference {
		if spec, ok := t.builtins[e.Func.Name]; ok {
			if len(e.Args) != spec.arity {
				return nil, WrongNumberOfArgumentsError{Name: e.Func.Name, Expected: spec.arity, Found: len(e.Args)}
			}
			return spec.lower(t, e.Args)
		}
	}

	fn, err := t.transformExpr(e.Func)
	if err != nil {
		return nil, err
	}
	args := make([]*QueryExpr, len(e.Args))
	for i, a := range e.Args {
		v, err := t.transformExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return &QueryExpr{Kind: QueryApply, ApplyFunc: fn, ApplyArgs: args}, nil
}

func (t *Transformer) transformBlock(e *ast.Expr) (*QueryExpr, error) {
	if len(e.Items) == 0 {
		return nil, EmptyBlockError{}
	}
	var last *QueryExpr
	for _, item := range e.Items {
		v, err := t.transformExpr(item)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (t *Transformer) transformLambda(e *ast.Expr) (*QueryExpr, error) {
	if len(e.Params) == 0 {
		return nil, InvalidLambdaParamsError{}
	}
	body, err := t.transformExpr(e.Body)
	if err != nil {
		return nil, err
	}
	return &QueryExpr{Kind: QueryLambda, LambdaParams: e.Params, LambdaBody: body}, nil
}

func (t *Transformer) transformInstance(e *ast.Expr) (*QueryExpr, error) {
	fields := make([]InstanceField, len(e.Fields))
	for i, f := range e.Fields {
		v, err := t.transformExpr(f.Value)
		if err != nil {
			return nil, err
		}
		fields[i] = InstanceField{Name: f.Name, Value: v}
	}
	return &QueryExpr{Kind: QueryInstance, InstanceFields: fields}, nil
}

func (t *Transformer) transformLet(e *ast.Expr) (*QueryExpr, error) {
	value, err := t.transformExpr(e.LetValue)
	if err != nil {
		return nil, err
	}
	t.pushScopeName(e.LetName)
	body, err := t.transformExpr(e.LetBody)
	t.popScopeName()
	if err != nil {
		return nil, err
	}
	return &QueryExpr{Kind: QueryBinding, BindingName: e.LetName, BindingValue: value, BindingBody: body}, nil
}

// transformToPredicate handles comparison operators (== != > >= < <=),
// logical and/or, and unary not; anything else is UnsupportedOperator.
func (t *Transformer) transformToPredicate(e *ast.Expr) (*PredicateExpr, error) {
	switch e.Kind {
	case ast.BinaryOp:
		switch e.Op {
		case "==", "!=", "<", "<=", ">", ">=":
			left, err := t.transformExpr(e.Left)
			if err != nil {
				return nil, err
			}
			right, err := t.transformExpr(e.Right)
			if err != nil {
				return nil, err
			}
			return &PredicateExpr{Kind: PredCompare, CmpOp: comparisonFromToken(e.Op), Left: left, Right: right}, nil
		case "and":
			l, err := t.transformToPredicate(e.Left)
			if err != nil {
				return nil, err
			}
			r, err := t.transformToPredicate(e.Right)
			if err != nil {
				return nil, err
			}
			return &PredicateExpr{Kind: PredAnd, Children: []*PredicateExpr{l, r}}, nil
		case "or":
			l, err := t.transformToPredicate(e.Left)
			if err != nil {
				return nil, err
			}
			r, err := t.transformToPredicate(e.Right)
			if err != nil {
				return nil, err
			}
			return &PredicateExpr{Kind: PredOr, Children: []*PredicateExpr{l, r}}, nil
		default:
			return nil, UnsupportedOperatorError{Op: e.Op}
		}
	case ast.UnaryOp:
		if e.Op != "not" {
			return nil, UnsupportedOperatorError{Op: e.Op}
		}
		operand, err := t.transformToPredicate(e.Operand)
		if err != nil {
			return nil, err
		}
		return &PredicateExpr{Kind: PredNot, Operand: operand}, nil
	default:
		return nil, UnsupportedExpressionError{Description: fmt.Sprintf("%s in predicate position", e.Kind)}
	}
}

func comparisonFromToken(op string) ComparisonOp {
	switch op {
	case "==":
		return CmpEq
	case "!=":
		return CmpNe
	case "<":
		return CmpLt
	case "<=":
		return CmpLe
	case ">":
		return CmpGt
	case ">=":
		return CmpGe
	default:
		panic("engine: unreachable comparison token " + op)
	}
}

// tableNameFromExpr extracts a bare table identifier from a scan/insert
// argument, as the Reference it must be.
func tableNameFromExpr(builtin string, e *ast.Expr) (string, error) {
	if e.Kind != ast.Reference {
		return "", InvalidArgumentError{BuiltIn: builtin}
	}
	return e.Name, nil
}

// columnNameList extracts an ordered list of column names from either a
// bare Reference (one column) or a Tuple of References, as used by
// project/2 and the RETURNING argument of insert/3.
func columnNameList(builtin string, e *ast.Expr) ([]string, error) {
	switch e.Kind {
	case ast.Reference:
		return []string{e.Name}, nil
	case ast.Tuple:
		names := make([]string, len(e.Items))
		for i, item := range e.Items {
			if item.Kind != ast.Reference {
				return nil, InvalidColumnNameError{Name: item.Kind.String()}
			}
			names[i] = item.Name
		}
		return names, nil
	default:
		return nil, InvalidArgumentError{BuiltIn: builtin}
	}
}

func intLiteral(builtin string, e *ast.Expr) (int64, error) {
	if e.Kind != ast.Number {
		return 0, InvalidArgumentError{BuiltIn: builtin}
	}
	v, err := parseNumberLiteral(e.Name)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case pager.KindInt32:
		return int64(v.Int32), nil
	case pager.KindInt64:
		return v.Int64, nil
	default:
		return 0, InvalidNumberError{Text: e.Name}
	}
}

func lowerScan(t *Transformer, args []*ast.Expr) (*QueryExpr, error) {
	name, err := tableNameFromExpr("scan", args[0])
	if err != nil {
		return nil, err
	}
	return &QueryExpr{Kind: QueryTransaction, Transaction: &LogicalTransaction{Kind: LogicalScan, Table: name}}, nil
}

func lowerFilter(t *Transformer, args []*ast.Expr) (*QueryExpr, error) {
	input, err := t.transformExpr(args[0])
	if err != nil {
		return nil, err
	}
	if input.Kind != QueryTransaction {
		return nil, InvalidArgumentError{BuiltIn: "filter"}
	}
	lambda := args[1]
	if lambda.Kind != ast.Lambda || len(lambda.Params) != 1 {
		return nil, ExpectedLambdaError{}
	}
	t.pushRowVar(lambda.Params[0])
	pred, err := t.transformToPredicate(lambda.Body)
	t.popRowVar()
	if err != nil {
		return nil, err
	}
	input.Transaction.Ops = append(input.Transaction.Ops, LogicalOp{Kind: LogicalOpFilter, Predicate: pred})
	return input, nil
}

func lowerInsertNoReturning(t *Transformer, args []*ast.Expr) (*QueryExpr, error) {
	name, err := tableNameFromExpr("insert_", args[0])
	if err != nil {
		return nil, err
	}
	value, err := t.transformExpr(args[1])
	if err != nil {
		return nil, err
	}
	return &QueryExpr{Kind: QueryTransaction, Transaction: &LogicalTransaction{
		Kind: LogicalInsert, Table: name, Value: value,
	}}, nil
}

func lowerInsertReturning(t *Transformer, args []*ast.Expr) (*QueryExpr, error) {
	base, err := lowerInsertNoReturning(t, args[:2])
	if err != nil {
		return nil, err
	}
	cols, err := columnNameList("insert", args[2])
	if err != nil {
		return nil, err
	}
	base.Transaction.Returning = cols
	return base, nil
}

func lowerProject(t *Transformer, args []*ast.Expr) (*QueryExpr, error) {
	input, err := t.transformExpr(args[0])
	if err != nil {
		return nil, err
	}
	if input.Kind != QueryTransaction {
		return nil, InvalidArgumentError{BuiltIn: "project"}
	}
	cols, err := columnNameList("project", args[1])
	if err != nil {
		return nil, err
	}
	input.Transaction.Ops = append(input.Transaction.Ops, LogicalOp{Kind: LogicalOpProject, Columns: cols})
	return input, nil
}

func lowerLimit(t *Transformer, args []*ast.Expr) (*QueryExpr, error) {
	input, err := t.transformExpr(args[0])
	if err != nil {
		return nil, err
	}
	if input.Kind != QueryTransaction {
		return nil, InvalidArgumentError{BuiltIn: "limit"}
	}
	n, err := intLiteral("limit", args[1])
	if err != nil {
		return nil, err
	}
	input.Transaction.Ops = append(input.Transaction.Ops, LogicalOp{Kind: LogicalOpLimit, N: n})
	return input, nil
}

func lowerOffset(t *Transformer, args []*ast.Expr) (*QueryExpr, error) {
	input, err := t.transformExpr(args[0])
	if err != nil {
		return nil, err
	}
	if input.Kind != QueryTransaction {
		return nil, InvalidArgumentError{BuiltIn: "offset"}
	}
	n, err := intLiteral("offset", args[1])
	if err != nil {
		return nil, err
	}
	input.Transaction.Ops = append(input.Transaction.Ops, LogicalOp{Kind: LogicalOpOffset, N: n})
	return input, nil
}
