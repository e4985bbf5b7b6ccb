package fat

import (
	"fmt"

	"github.com/tinydisk/fat/checkpoint"
)

// pathResolver tokenizes a slash-separated path into successive 8.3
// component names. It keeps a start/end cursor pair into the path string and
// a scratch name buffer; reset it between walks.
type pathResolver struct {
	path       string
	start, end int
	name       [11]byte
}

func (pr *pathResolver) reset(path string) {
	pr.path = path
	pr.start = 0
	pr.end = 0
	pr.name = [11]byte{}
}

// nextPart advances the cursors to the next path component and fills the
// scratch name buffer with its 8.3 form. It returns false once the path is
// exhausted.
func (pr *pathResolver) nextPart() (bool, error) {
	pr.start = pr.end
	for pr.start < len(pr.path) && pr.path[pr.start] == '/' {
		pr.start++
	}
	if pr.start >= len(pr.path) {
		return false, nil
	}

	pr.end = pr.start
	for pr.end < len(pr.path) && pr.path[pr.end] != '/' {
		pr.end++
	}

	name, err := makeValidName(pr.path[pr.start:pr.end])
	if err != nil {
		return false, err
	}
	pr.name = name
	return true, nil
}

// isFilePart reports whether the current component is the final (leaf)
// component of the path rather than an intermediate directory.
func (pr *pathResolver) isFilePart() bool {
	rest := pr.end
	for rest < len(pr.path) && pr.path[rest] == '/' {
		rest++
	}
	return rest >= len(pr.path)
}

// makeValidName maps one path component to the fixed 11-byte 8.3 directory
// entry form: up to 8 name characters, a single optional dot forcing
// continuation at the extension slots, up to 3 extension characters.
// Unused slots are space padded and letters are upper-cased.
func makeValidName(part string) ([11]byte, error) {
	var name [11]byte
	for i := range name {
		name[i] = ' '
	}

	idx := 0
	dotFound := false
	for i := 0; i < len(part); i++ {
		if idx >= len(name) {
			return name, checkpoint.Wrap(fmt.Errorf("component %q exceeds 11 characters", part), ErrInvalidName)
		}

		c := part[i]
		if c == '.' {
			if dotFound {
				return name, checkpoint.Wrap(fmt.Errorf("component %q has more than one dot", part), ErrInvalidName)
			}
			// Jump to the extension slots; the next character lands at
			// index 8.
			idx = 7
			dotFound = true
			idx++
			continue
		}

		if !dotFound && idx > 7 {
			return name, checkpoint.Wrap(fmt.Errorf("component %q has more than 8 name characters", part), ErrInvalidName)
		}

		name[idx] = upperByte(c)
		idx++
	}
	return name, nil
}

func upperByte(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
