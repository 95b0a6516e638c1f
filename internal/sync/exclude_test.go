package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExclusionSet_Match(t *testing.T) {
	excl := NewExclusionSet("node_modules", "build/out", "logs/")

	tests := []struct {
		path string
		want bool
	}{
		{"node_modules", true},
		{"node_modules/react/index.js", true},
		{"src/node_modules", false}, // prefix match is anchored at the root
		{"node_modules2/x", false},
		{"build/out", true},
		{"build/out/app.bin", true},
		{"build/other", false},
		{"logs", true}, // trailing slash in the pattern is normalized away
		{"logs/today.log", true},
		{"src/main.go", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, excl.Match(tt.path), "path %q", tt.path)
	}
}

func TestExclusionSet_NilAndEmpty(t *testing.T) {
	var nilSet *ExclusionSet
	assert.False(t, nilSet.Match("anything"))

	empty := NewExclusionSet()
	assert.False(t, empty.Match("anything"))

	// Empty and "." patterns are dropped instead of matching everything.
	weird := NewExclusionSet("", ".", "/")
	assert.False(t, weird.Match("file.txt"))
	assert.Empty(t, weird.Patterns())
}

func TestExclusionSet_NormalizesLeadingSlash(t *testing.T) {
	excl := NewExclusionSet("/vendor/cache/")
	assert.True(t, excl.Match("vendor/cache"))
	assert.True(t, excl.Match("vendor/cache/pkg.zip"))
	assert.False(t, excl.Match("vendor"))
}
