package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 6, "hello…"},
		{"héllo", 3, "hé…"},
		{"abc", 1, "…"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.max), tt.in)
	}
}

func TestPanel(t *testing.T) {
	out := NewPanel("Plan", "3 steps").WithWidth(30).Render()
	assert.Contains(t, out, "Plan")
	assert.Contains(t, out, "3 steps")
}

func TestProgressBar(t *testing.T) {
	assert.Contains(t, ProgressBar(50, 10), "█████")
	assert.NotContains(t, ProgressBar(0, 10), "█")
	assert.Contains(t, ProgressBar(150, 4), "████")
}
