package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_ColumnWidths(t *testing.T) {
	tbl := &Table{
		Headers: []string{"ID", "TITLE"},
		Rows:    [][]string{{"a", "short"}, {"long-id", "x"}},
	}
	assert.Equal(t, []int{7, 5}, tbl.ColumnWidths())

	tbl.MaxWidth = 4
	assert.Equal(t, []int{4, 4}, tbl.ColumnWidths())
}

func TestTable_Render(t *testing.T) {
	tbl := &Table{
		Headers:  []string{"STEP", "STATE"},
		Rows:     [][]string{{"write-exporter", "done"}, {"review"}},
		MaxWidth: 8,
	}
	out := tbl.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "STEP")
	assert.Contains(t, lines[2], "write-e…")
	assert.Contains(t, lines[3], "review")
}

func TestTable_Render_Empty(t *testing.T) {
	assert.Empty(t, (&Table{}).Render())
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab  ", padRight("ab", 4))
	assert.Equal(t, "abcdef", padRight("abcdef", 4))
	assert.Equal(t, "é ", padRight("é", 2))
}
