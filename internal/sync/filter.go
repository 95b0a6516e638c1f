package sync

import (
	"path"
	"strings"
)

// tempSuffixes and friends recognize editor scratch files so that save
// sequences of vim, emacs and co. never reach the debouncer state machine.
var tempSuffixes = []string{
	"~", "#", ".swp", ".swo", ".swn", ".tmp", ".bak", ".temp",
}

var tempPrefixes = []string{
	".#", "~",
}

// IsTempFile applies the editor-temp naming heuristic to a file's base name.
func IsTempFile(name string) bool {
	for _, s := range tempSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	for _, p := range tempPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return strings.Contains(name, ".tmp.")
}

// hasDotSegment reports whether any path segment starts with a dot, which is
// the same rule the scanner uses to prune hidden files and directories.
func hasDotSegment(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// ShouldSkipEvent filters a watcher event before any state transition:
// directory events, hidden paths, excluded paths and editor temp files are
// all dropped.
func ShouldSkipEvent(ev Event, exclude *ExclusionSet) bool {
	if ev.IsDir {
		return true
	}
	if hasDotSegment(ev.RelPath) {
		return true
	}
	if exclude.Match(ev.RelPath) {
		return true
	}
	return IsTempFile(path.Base(ev.RelPath))
}
