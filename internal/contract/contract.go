// Package contract defines the names shared by callers, the dispatcher and the
// backing store: the authority, collection paths, table and column names, and the
// value types that flow between them.
package contract

import (
	"sort"

	"github.com/conduit-lang/taskprovider/internal/uri"
)

const (
	// Authority is the default namespace for task identifiers
	Authority = "com.example.android.todolist"

	// PathTasks is the collection segment for tasks
	PathTasks = "tasks"
)

// Match codes for the task collection. Directories use multiples of 100 and
// items within them use the next integer.
const (
	Tasks      = 100
	TaskWithID = 101
)

// TaskEntry names the tasks table and its columns
var TaskEntry = struct {
	TableName         string
	ID                string
	ColumnDescription string
	ColumnPriority    string
}{
	TableName:         "tasks",
	ID:                "_id",
	ColumnDescription: "description",
	ColumnPriority:    "priority",
}

// ContentURI returns the collection identifier for tasks under authority
func ContentURI(authority string) uri.Identifier {
	return uri.New(authority, PathTasks)
}

// Values maps column names to scalar values for a mutation
type Values map[string]interface{}

// Clone returns a shallow copy
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Columns returns the column names in sorted order
func (v Values) Columns() []string {
	cols := make([]string, 0, len(v))
	for k := range v {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Row is a single result row keyed by column name
type Row map[string]interface{}

// Condition is an equality constraint on a column
type Condition struct {
	Column string
	Value  interface{}
}

// Selection narrows a read, update or delete. Conditions are joined with AND.
type Selection struct {
	// Columns is the projection; empty selects every known column
	Columns []string
	// Where holds equality constraints
	Where []Condition
	// OrderBy is an optional column to sort by
	OrderBy string
	// Descending reverses OrderBy
	Descending bool
	// Limit caps the number of rows; zero means no limit
	Limit int
}

// WithCondition returns a copy of s with an extra equality constraint
func (s Selection) WithCondition(column string, value interface{}) Selection {
	where := make([]Condition, len(s.Where), len(s.Where)+1)
	copy(where, s.Where)
	s.Where = append(where, Condition{Column: column, Value: value})
	return s
}
