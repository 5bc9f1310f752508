// Package akasha wires the storage engine (file I/O, buffer pool,
// table heap, catalog) together with the query engine (transformer,
// compiler, executor) into a single embeddable database handle.
//
// akasha itself has no lexer or parser: callers build an *ast.Expr tree
// (directly, or via an external parser — out of scope for this module,
// see spec §1) and hand it to Run.
package akasha

import (
	"context"
	"log"

	"akasha/internal/ast"
	"akasha/internal/engine"
	"akasha/internal/storage"
	"akasha/internal/storage/pager"
)

// DB is a handle onto one akasha database directory: the storage layer
// plus the transformer/compiler/executor needed to run queries against
// its catalog.
type DB struct {
	store *storage.DB
}

// Create initializes a brand-new, empty database directory at homeDir.
func Create(ctx context.Context, homeDir string, logger *log.Logger) (*DB, error) {
	store, err := storage.Create(ctx, homeDir, logger)
	if err != nil {
		return nil, err
	}
	return &DB{store: store}, nil
}

// CreateWithConfig is Create with an explicit buffer pool configuration,
// e.g. a deliberately small pool to exercise eviction under test.
func CreateWithConfig(ctx context.Context, homeDir string, cfg storage.Config, logger *log.Logger) (*DB, error) {
	store, err := storage.CreateWithConfig(ctx, homeDir, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &DB{store: store}, nil
}

// Open reopens an existing database directory.
func Open(ctx context.Context, homeDir string, logger *log.Logger) (*DB, error) {
	store, err := storage.Open(ctx, homeDir, logger)
	if err != nil {
		return nil, err
	}
	return &DB{store: store}, nil
}

// Close stops background flushing and closes every open relation file.
func (db *DB) Close() error { return db.store.Close() }

// Flush writes back every dirty buffer-pool frame.
func (db *DB) Flush() { db.store.Flush() }

// CreateTable registers a new table with the given columns.
func (db *DB) CreateTable(ctx context.Context, name string, columns []storage.ColumnInfo) (*storage.PhysicalTable, error) {
	return db.store.Catalog.CreateTable(ctx, name, columns)
}

// Run transforms expr into logical IR, compiles it against the current
// catalog, and executes it, returning a lazy tuple stream. Consumers
// that stop before exhausting the stream must call Close.
func (db *DB) Run(ctx context.Context, expr *ast.Expr) (engine.TupleStream, error) {
	transformer := engine.NewTransformer()
	logical, err := transformer.Transform(expr)
	if err != nil {
		return nil, err
	}
	compiler := engine.NewCompiler(db.store.Catalog)
	physical, err := compiler.Compile(logical)
	if err != nil {
		return nil, err
	}
	executor := engine.NewQueryExecutor(db.store.Catalog)
	return executor.Execute(ctx, physical)
}

// Collect runs expr to completion and returns every tuple it produces,
// closing the stream before returning (success or error).
func (db *DB) Collect(ctx context.Context, expr *ast.Expr) ([]pager.Tuple, error) {
	stream, err := db.Run(ctx, expr)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out []pager.Tuple
	for {
		tup, ok, err := stream.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tup)
	}
}
