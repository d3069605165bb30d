package wiki

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"kevin bacon", "Kevin_Bacon"},
		{"  albert   einstein  ", "Albert_Einstein"},
		{"Kevin_Bacon", "Kevin_Bacon"},
		{"shaquille o'neal", "Shaquille_O'Neal"},
		{"world war\tii", "World_War_Ii"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in), "input %q", tt.in)
	}
}
