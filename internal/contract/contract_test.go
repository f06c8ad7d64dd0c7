package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentURI(t *testing.T) {
	assert.Equal(t, "com.example.android.todolist/tasks", ContentURI(Authority).String())
}

func TestValues_CloneAndColumns(t *testing.T) {
	v := Values{"priority": 1, "description": "buy milk"}
	c := v.Clone()
	c["priority"] = 3

	assert.Equal(t, 1, v["priority"])
	assert.Equal(t, []string{"description", "priority"}, v.Columns())
}

func TestSelection_WithCondition(t *testing.T) {
	base := Selection{Where: []Condition{{Column: "priority", Value: 1}}}
	narrowed := base.WithCondition("_id", int64(4))

	assert.Len(t, base.Where, 1)
	assert.Equal(t, []Condition{
		{Column: "priority", Value: 1},
		{Column: "_id", Value: int64(4)},
	}, narrowed.Where)
}
