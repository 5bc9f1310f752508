package engine

import (
	"context"

	"akasha/internal/storage"
	"akasha/internal/storage/pager"
)

// QueryExecutor turns a compiled Transaction into a lazy TupleStream,
// resolving the target table's heap through the catalog.
type QueryExecutor struct {
	catalog *storage.TableCatalog
}

// NewQueryExecutor returns an executor resolving tables against catalog.
func NewQueryExecutor(catalog *storage.TableCatalog) *QueryExecutor {
	return &QueryExecutor{catalog: catalog}
}

// Execute dispatches tx: a Select produces a scan wrapped in the
// composed operator pipeline; an Insert writes the row, then (only if
// RETURNING was requested) streams the projected values through the
// same pipeline.
func (ex *QueryExecutor) Execute(ctx context.Context, tx *Transaction) (TupleStream, error) {
	table, ok := ex.catalog.GetTable(tx.Table)
	if !ok {
		return nil, TableNotFoundError{Name: tx.Table}
	}

	switch tx.Kind {
	case TxSelect:
		scan := table.Heap.Scan(ctx)
		return newComposedOperator(scan, tx.Ops), nil

	case TxInsert:
		full, err := buildInsertTuple(table.Info, tx.Values)
		if err != nil {
			return nil, err
		}
		if err := table.Heap.InsertTuple(ctx, full); err != nil {
			return nil, err
		}
		if tx.Returning == nil {
			return emptyStream{}, nil
		}
		projected := make([]pager.Value, len(tx.Returning))
		for i, id := range tx.Returning {
			projected[i] = full.Values[id]
		}
		single := &singleTupleStream{tup: pager.Tuple{Values: projected}}
		return newComposedOperator(single, tx.Ops), nil

	default:
		return nil, NotATransactionError{}
	}
}

// buildInsertTuple assembles a full-width tuple from the Instance's
// explicit values, filling every column the caller didn't supply with
// its default, or Null if nullable, and failing otherwise (§4.8).
func buildInsertTuple(info storage.TableInfo, provided []ColumnValue) (pager.Tuple, error) {
	cols := info.OrderedColumns()
	values := make([]pager.Value, len(cols))
	set := make([]bool, len(cols))

	for _, pv := range provided {
		values[pv.ColumnID] = pv.Value
		set[pv.ColumnID] = true
	}

	for _, col := range cols {
		if set[col.ID] {
			continue
		}
		switch {
		case col.Default != nil:
			values[col.ID] = *col.Default
		case col.Nullable:
			values[col.ID] = pager.NullValue()
		default:
			return pager.Tuple{}, MissingValueForNonNullableError{Column: col.Name}
		}
	}

	return pager.Tuple{Values: values}, nil
}
