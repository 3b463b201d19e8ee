package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"repeated flags", []string{"v1", "v2", "v1"}, []string{"v1", "v2"}},
		{"comma separated", []string{"v1, v2,,v3"}, []string{"v1", "v2", "v3"}},
		{"mixed with blanks", []string{"  ", "v2", "v1,v2"}, []string{"v2", "v1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.in))
		})
	}
}
