package storage

import "fmt"

// TableAlreadyExistsError is the DbInternal error CreateTable returns
// when the requested table name is already registered.
type TableAlreadyExistsError struct {
	Name string
}

func (e *TableAlreadyExistsError) Error() string {
	return fmt.Sprintf("storage: table %q already exists", e.Name)
}
