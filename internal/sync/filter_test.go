package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTempFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"main.go~", true},
		{"main.go#", true},
		{".main.go.swp", true},
		{"x.swo", true},
		{"x.swn", true},
		{"upload.tmp", true},
		{"backup.bak", true},
		{"data.temp", true},
		{".#main.go", true},
		{"~lock.docx", true},
		{"archive.tmp.partial", true},
		{"main.go", false},
		{"tmp.go", false},
		{"swp.txt", false},
		{"template.html", false},
		{"bakery.go", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTempFile(tt.name), "name %q", tt.name)
	}
}

func TestShouldSkipEvent(t *testing.T) {
	excl := NewExclusionSet("node_modules")

	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"regular file", Event{RelPath: "src/main.go", Kind: EventModified}, false},
		{"directory", Event{RelPath: "src", Kind: EventCreated, IsDir: true}, true},
		{"hidden file", Event{RelPath: ".env", Kind: EventModified}, true},
		{"file inside hidden dir", Event{RelPath: ".git/HEAD", Kind: EventModified}, true},
		{"excluded path", Event{RelPath: "node_modules/x/y.js", Kind: EventCreated}, true},
		{"editor temp", Event{RelPath: "src/main.go.swp", Kind: EventCreated}, true},
		{"temp only by basename", Event{RelPath: "tmpdir/real.go", Kind: EventModified}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldSkipEvent(tt.ev, excl))
		})
	}
}
