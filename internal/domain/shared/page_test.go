package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPageQuery(t *testing.T) {
	tests := []struct {
		name         string
		number, size int
		wantNumber   int
		wantSize     int
	}{
		{"defaults", 0, 0, 1, DefaultPageSize},
		{"explicit", 3, 10, 3, 10},
		{"size capped", 1, 500, 1, MaxPageSize},
		{"negative page", -2, 5, 1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPageQuery(tt.number, tt.size)
			assert.Equal(t, tt.wantNumber, q.Number)
			assert.Equal(t, tt.wantSize, q.Size)
			assert.Equal(t, "created_at", q.SortBy)
			assert.Equal(t, "desc", q.SortDir)
		})
	}
}

func TestPageQuery_Offset(t *testing.T) {
	assert.Equal(t, 0, PageQuery{Number: 0, Size: 20}.Offset())
	assert.Equal(t, 40, NewPageQuery(3, 20).Offset())
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{1, 2, 3}, 21, NewPageQuery(1, 10))
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, 10, p.Size)

	exact := NewPage([]int{}, 20, NewPageQuery(2, 10))
	assert.Equal(t, 2, exact.TotalPages)

	empty := NewPage([]int{}, 0, PageQuery{Number: 1})
	assert.Zero(t, empty.TotalPages)
}
