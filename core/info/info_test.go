package info

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostname(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"board", "board"},
		{"board-7.lab.example", "board-7"},
		{"my_board 2", "my-board-2"},
		{"-ünï-", "n"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Hostname(tt.in), tt.in)
	}
	assert.Len(t, Hostname(strings.Repeat("a", 100)), maxHostnameLen)
}

func TestNew(t *testing.T) {
	n := New()
	assert.Equal(t, Version, n.Version)
	assert.NotEmpty(t, n.OS)
}
