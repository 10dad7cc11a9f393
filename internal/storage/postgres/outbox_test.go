package postgres

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "mailbox unavailable", n: 1024, want: "mailbox unavailable"},
		{name: "exact", in: "abcd", n: 4, want: "abcd"},
		{name: "ascii cut", in: "abcdef", n: 3, want: "abc"},
		{name: "drops split rune", in: strings.Repeat("a", 1023) + "é…", n: 1024, want: strings.Repeat("a", 1023)},
		{name: "keeps whole rune", in: strings.Repeat("a", 1022) + "é…", n: 1024, want: strings.Repeat("a", 1022) + "é"},
		{name: "three byte rune", in: "ab…", n: 4, want: "ab"},
		{name: "invalid input is repaired", in: "bad \xff byte", n: 1024, want: "bad � byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateUTF8(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}
