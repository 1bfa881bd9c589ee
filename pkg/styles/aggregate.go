// Package styles generates the aggregated style entry from partials and
// hands it to a style compiler.
package styles

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	// PartialPrefix marks a file as a partial
	PartialPrefix = "_"
	// PartialExt is the extension a partial must carry
	PartialExt = ".scss"
)

// Banner heads every generated entry file
const Banner = `// ------------------------------------------------------------------
// GENERATED FILE - DO NOT EDIT
// Produced by cspack from the _*.scss partials in this folder.
// Add, rename or remove partials instead of editing this file.
// ------------------------------------------------------------------

`

// Partial is one style partial found in the styles directory
type Partial struct {
	// File is the file name, e.g. "_hero.scss"
	File string
	// Stem is the import reference, e.g. "hero"
	Stem string
}

// IsPartial reports whether a file name qualifies as a style partial
func IsPartial(name string) bool {
	return strings.HasPrefix(name, PartialPrefix) &&
		strings.HasSuffix(name, PartialExt) &&
		len(name) > len(PartialPrefix)+len(PartialExt)
}

// StemOf strips the partial prefix and extension
func StemOf(name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, PartialPrefix), PartialExt)
}

// Discover lists the partials in dir. Subdirectories are not descended.
func Discover(fsys afero.Fs, dir string) ([]Partial, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var partials []Partial
	for _, entry := range entries {
		if entry.IsDir() || !IsPartial(entry.Name()) {
			continue
		}
		partials = append(partials, Partial{File: entry.Name(), Stem: StemOf(entry.Name())})
	}
	return partials, nil
}

// Order puts the common partial first and sorts the rest by stem.
// The input slice is not modified.
func Order(partials []Partial, common string) []Partial {
	ordered := make([]Partial, 0, len(partials))
	rest := make([]Partial, 0, len(partials))

	for _, p := range partials {
		if common != "" && p.Stem == common {
			ordered = append(ordered, p)
			continue
		}
		rest = append(rest, p)
	}

	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Stem < rest[j].Stem })
	return append(ordered, rest...)
}

// ImportLine renders a single import directive
func ImportLine(p Partial) string {
	return fmt.Sprintf("@import '%s';", p.Stem)
}

// Render produces the entry file contents for already ordered partials
func Render(partials []Partial) []byte {
	var buf bytes.Buffer
	buf.WriteString(Banner)
	for _, p := range partials {
		buf.WriteString(ImportLine(p))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
