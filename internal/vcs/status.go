package vcs

import (
	"strings"
)

// parsePorcelainZ parses `git status --porcelain=v1 -z` output.
//
// Entries are `XY <path>\x00`. Renames and copies carry the original path as
// an extra NUL-terminated field which is skipped.
func parsePorcelainZ(out string) Status {
	var st Status

	fields := strings.Split(out, "\x00")
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		x, y, path := entry[0], entry[1], entry[3:]

		switch {
		case x == '?' && y == '?':
			st.Untracked = append(st.Untracked, path)
		case x == '!' && y == '!':
			// ignored
		default:
			st.Modified = append(st.Modified, path)
		}

		if x == 'R' || x == 'C' {
			i++
		}
	}

	return st
}
