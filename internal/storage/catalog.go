package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"akasha/internal/storage/pager"
)

// Reserved file-ids for the two bootstrap system tables. User tables
// allocate file-ids from 2 upward in creation order.
const (
	RelationsFileID uint32 = 0
	ColumnsFileID   uint32 = 1
)

const (
	relationsNameSystemTable  = "akasha.relations"
	columnsNameSystemTable    = "akasha.columns"
	firstUserTableFileID      = 2
)

// ColumnInfo describes one column of a table. ID is the column's
// position within a tuple, not its declaration order.
type ColumnInfo struct {
	ID       uint32
	Name     string
	DataType pager.ValueKind
	Nullable bool
	// Default, when non-nil, is the value substituted for this column
	// on insert when the caller supplies none. The columns system table
	// persists it as an encoded Value inside a Blob column so defaults
	// survive a reopen.
	Default *pager.Value
}

// TableInfo maps column names to ColumnInfo. Column order for tuple
// layout purposes is by ID, not insertion order.
type TableInfo struct {
	byName map[string]ColumnInfo
}

// NewTableInfo builds a TableInfo from an unordered set of columns.
func NewTableInfo(columns []ColumnInfo) TableInfo {
	m := make(map[string]ColumnInfo, len(columns))
	for _, c := range columns {
		m[c.Name] = c
	}
	return TableInfo{byName: m}
}

// GetColumnIndex resolves a column name to its id.
func (ti TableInfo) GetColumnIndex(name string) (uint32, bool) {
	c, ok := ti.byName[name]
	return c.ID, ok
}

// Column returns the ColumnInfo for name.
func (ti TableInfo) Column(name string) (ColumnInfo, bool) {
	c, ok := ti.byName[name]
	return c, ok
}

// ColumnByID returns the ColumnInfo whose ID is id.
func (ti TableInfo) ColumnByID(id uint32) (ColumnInfo, bool) {
	for _, c := range ti.byName {
		if c.ID == id {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// OrderedColumns returns every column sorted by ID.
func (ti TableInfo) OrderedColumns() []ColumnInfo {
	cols := make([]ColumnInfo, 0, len(ti.byName))
	for _, c := range ti.byName {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].ID < cols[j].ID })
	return cols
}

// Len returns the number of columns.
func (ti TableInfo) Len() int { return len(ti.byName) }

// PhysicalTable is a table's on-disk identity plus its in-memory schema,
// owned by the catalog and shared with the executor during a query.
type PhysicalTable struct {
	FileID uint32
	Name   string
	Heap   *TableHeap
	Info   TableInfo
}

func relationsTableInfo() TableInfo {
	return NewTableInfo([]ColumnInfo{
		{ID: 0, Name: "id", DataType: pager.KindInt64},
		{ID: 1, Name: "name", DataType: pager.KindText},
	})
}

func columnsTableInfo() TableInfo {
	return NewTableInfo([]ColumnInfo{
		{ID: 0, Name: "id", DataType: pager.KindInt64},
		{ID: 1, Name: "table_id", DataType: pager.KindInt64},
		{ID: 2, Name: "name", DataType: pager.KindText},
		{ID: 3, Name: "type", DataType: pager.KindByte},
		{ID: 4, Name: "nullable", DataType: pager.KindBoolean},
		{ID: 5, Name: "default", DataType: pager.KindBlob, Nullable: true},
	})
}

// TableCatalog is the in-memory registry of every table in a database
// directory, bootstrapped from the two reserved system heaps.
type TableCatalog struct {
	io   *IoManager
	pool *BufferPool

	mu     sync.RWMutex
	tables map[string]*PhysicalTable

	relations *TableHeap
	columns   *TableHeap
}

// InitThenLoad bootstraps a brand-new database directory: it creates the
// two system heaps and writes the rows describing them.
func InitThenLoad(ctx context.Context, io *IoManager, pool *BufferPool) (*TableCatalog, error) {
	relations, err := NewTableHeap(ctx, RelationsFileID, pool)
	if err != nil {
		return nil, fmt.Errorf("storage: create relations heap: %w", err)
	}
	columns, err := NewTableHeap(ctx, ColumnsFileID, pool)
	if err != nil {
		return nil, fmt.Errorf("storage: create columns heap: %w", err)
	}

	cat := &TableCatalog{
		io:        io,
		pool:      pool,
		tables:    make(map[string]*PhysicalTable),
		relations: relations,
		columns:   columns,
	}

	systemTables := []struct {
		fileID uint32
		name   string
		info   TableInfo
	}{
		{RelationsFileID, relationsNameSystemTable, relationsTableInfo()},
		{ColumnsFileID, columnsNameSystemTable, columnsTableInfo()},
	}
	for _, st := range systemTables {
		if err := cat.insertRelationRow(ctx, st.fileID, st.name); err != nil {
			return nil, err
		}
		for _, col := range st.info.OrderedColumns() {
			if err := cat.insertColumnRow(ctx, st.fileID, col); err != nil {
				return nil, err
			}
		}
	}
	return cat, nil
}

// Load opens an existing database directory, reconstructing every user
// table's TableInfo and heap from the two system tables.
func Load(ctx context.Context, io *IoManager, pool *BufferPool) (*TableCatalog, error) {
	relations, err := OpenTableHeap(RelationsFileID, pool, io)
	if err != nil {
		return nil, fmt.Errorf("storage: open relations heap: %w", err)
	}
	columns, err := OpenTableHeap(ColumnsFileID, pool, io)
	if err != nil {
		return nil, fmt.Errorf("storage: open columns heap: %w", err)
	}

	names := make(map[uint32]string)
	it := relations.Scan(ctx)
	for {
		tup, ok, err := it.Next()
		if err != nil {
			it.Close()
			return nil, fmt.Errorf("storage: scan relations: %w", err)
		}
		if !ok {
			break
		}
		fileID := uint32(tup.Values[0].Int64)
		names[fileID] = tup.Values[1].Text
	}
	it.Close()

	colsByTable := make(map[uint32][]ColumnInfo)
	cit := columns.Scan(ctx)
	for {
		tup, ok, err := cit.Next()
		if err != nil {
			cit.Close()
			return nil, fmt.Errorf("storage: scan columns: %w", err)
		}
		if !ok {
			break
		}
		id := uint32(tup.Values[0].Int64)
		tableID := uint32(tup.Values[1].Int64)
		name := tup.Values[2].Text
		dtype := pager.ValueKind(tup.Values[3].Byte)
		nullable := tup.Values[4].Boolean
		var def *pager.Value
		if blob := tup.Values[5].Blob; len(blob) > 0 {
			v, _ := pager.DecodeValue(blob)
			def = &v
		}
		colsByTable[tableID] = append(colsByTable[tableID], ColumnInfo{
			ID: id, Name: name, DataType: dtype, Nullable: nullable, Default: def,
		})
	}
	cit.Close()

	cat := &TableCatalog{
		io:        io,
		pool:      pool,
		tables:    make(map[string]*PhysicalTable),
		relations: relations,
		columns:   columns,
	}

	for fileID, name := range names {
		if fileID == RelationsFileID || fileID == ColumnsFileID {
			continue
		}
		heap, err := OpenTableHeap(fileID, pool, io)
		if err != nil {
			return nil, fmt.Errorf("storage: open heap for table %q: %w", name, err)
		}
		cat.tables[name] = &PhysicalTable{
			FileID: fileID,
			Name:   name,
			Heap:   heap,
			Info:   NewTableInfo(colsByTable[fileID]),
		}
	}
	return cat, nil
}

func (c *TableCatalog) insertRelationRow(ctx context.Context, fileID uint32, name string) error {
	return c.relations.InsertTuple(ctx, pager.NewTuple(
		pager.Int64Value(int64(fileID)),
		pager.TextValue(name),
	))
}

func (c *TableCatalog) insertColumnRow(ctx context.Context, tableFileID uint32, col ColumnInfo) error {
	var def pager.Value
	if col.Default != nil {
		def = pager.BlobValue(col.Default.Append(nil))
	} else {
		def = pager.BlobValue(nil)
	}
	return c.columns.InsertTuple(ctx, pager.NewTuple(
		pager.Int64Value(int64(col.ID)),
		pager.Int64Value(int64(tableFileID)),
		pager.TextValue(col.Name),
		pager.ByteValue(byte(col.DataType)),
		pager.BoolValue(col.Nullable),
		def,
	))
}

// CreateTable registers a new table, persisting its schema into the two
// system tables before making it visible in memory.
func (c *TableCatalog) CreateTable(ctx context.Context, name string, columns []ColumnInfo) (*PhysicalTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, &TableAlreadyExistsError{Name: name}
	}

	fileID := uint32(firstUserTableFileID + len(c.tables))
	heap, err := NewTableHeap(ctx, fileID, c.pool)
	if err != nil {
		return nil, fmt.Errorf("storage: create heap for table %q: %w", name, err)
	}

	info := NewTableInfo(columns)
	if err := c.insertRelationRow(ctx, fileID, name); err != nil {
		return nil, err
	}
	for _, col := range info.OrderedColumns() {
		if err := c.insertColumnRow(ctx, fileID, col); err != nil {
			return nil, err
		}
	}

	pt := &PhysicalTable{FileID: fileID, Name: name, Heap: heap, Info: info}
	c.tables[name] = pt
	return pt, nil
}

// GetTable returns the named table, or ok=false if it is not registered.
func (c *TableCatalog) GetTable(name string) (*PhysicalTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pt, ok := c.tables[name]
	return pt, ok
}

// TableNames returns every registered user table name, in no particular
// order.
func (c *TableCatalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}
