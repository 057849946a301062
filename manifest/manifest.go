// Package manifest parses and validates flat dependency manifests in the
// exact-pin format used by requirements files: one `<package-name>==<version>`
// entry per line, with optional trailing comments, full-line comments and
// blank lines. The package checks structure only; it never contacts a
// package index and never resolves versions.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// LineKind classifies a manifest line.
type LineKind string

const (
	KindBlank   LineKind = "blank"
	KindComment LineKind = "comment"
	KindEntry   LineKind = "entry"
	KindInvalid LineKind = "invalid"
)

// Entry is a single package pin.
type Entry struct {
	// Name as written in the manifest.
	Name string `json:"name" yaml:"name"`
	// Extras from the optional bracket list, e.g. uvicorn[standard].
	Extras []string `json:"extras,omitempty" yaml:"extras,omitempty"`
	// Version is the exact pinned version string.
	Version string `json:"version" yaml:"version"`
	// Comment is the trailing comment text without the leading '#'.
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
	// Line is the 1-based line number in the source.
	Line int `json:"line" yaml:"line"`
}

// NormalizedName returns the name folded for comparison: lowercase with
// runs of '-', '_' and '.' collapsed to a single '-'.
func (e *Entry) NormalizedName() string {
	return NormalizeName(e.Name)
}

// Line is one source line with its classification.
type Line struct {
	// Number is the 1-based line number.
	Number int
	// Raw is the original text without the line terminator.
	Raw string
	// Kind classifies the line.
	Kind LineKind
	// Entry is set for KindEntry lines.
	Entry *Entry
	// BadReason explains KindInvalid lines.
	BadReason string
}

// Manifest is a parsed dependency manifest. Line order and non-entry lines
// are preserved so the manifest can be re-rendered.
type Manifest struct {
	Lines []Line
}

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	entryRe   = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)(?:\[([^\]]*)\])?\s*==\s*(\S+)$`)
	otherOpRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(?:\[[^\]]*\])?\s*(===|~=|!=|>=|<=|>|<)`)
	versionRe = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z!*+._-]*$`)
	foldRe    = regexp.MustCompile(`[-_.]+`)
)

// NormalizeName folds a package name for comparison, so My_Pkg, my-pkg and
// my.pkg all identify the same package.
func NormalizeName(name string) string {
	return foldRe.ReplaceAllString(strings.ToLower(name), "-")
}

// Parse reads a manifest. Lines that do not fit the pin grammar are kept as
// KindInvalid so validation can report them with their line numbers; only
// read failures return an error.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	num := 0
	for scanner.Scan() {
		num++
		raw := strings.TrimSuffix(scanner.Text(), "\r")
		m.Lines = append(m.Lines, classifyLine(num, raw))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return m, nil
}

// ParseString parses a manifest held in memory.
func ParseString(s string) *Manifest {
	m, _ := Parse(strings.NewReader(s))
	return m
}

// ParseFile reads and parses a manifest file.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func classifyLine(num int, raw string) Line {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Line{Number: num, Raw: raw, Kind: KindBlank}
	}
	if strings.HasPrefix(trimmed, "#") {
		return Line{Number: num, Raw: raw, Kind: KindComment}
	}

	req, comment := splitTrailingComment(trimmed)
	req = strings.TrimSpace(req)

	match := entryRe.FindStringSubmatch(req)
	if match == nil {
		reason := "not in name==version form"
		if op := otherOpRe.FindStringSubmatch(req); op != nil {
			reason = fmt.Sprintf("operator %q is not an exact pin, only == is allowed", op[1])
		}
		return Line{Number: num, Raw: raw, Kind: KindInvalid, BadReason: reason}
	}

	entry := &Entry{
		Name:    match[1],
		Version: match[3],
		Comment: comment,
		Line:    num,
	}
	if match[2] != "" {
		for _, extra := range strings.Split(match[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				entry.Extras = append(entry.Extras, extra)
			}
		}
	}
	return Line{Number: num, Raw: raw, Kind: KindEntry, Entry: entry}
}

// splitTrailingComment separates a requirement from its trailing comment.
// A '#' opens a comment only at the start of the line or after whitespace,
// matching how requirements files are read.
func splitTrailingComment(s string) (req, comment string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			return s[:i], strings.TrimSpace(s[i+1:])
		}
	}
	return s, ""
}

// Entries returns the pins in order of appearance.
func (m *Manifest) Entries() []*Entry {
	var entries []*Entry
	for _, line := range m.Lines {
		if line.Kind == KindEntry {
			entries = append(entries, line.Entry)
		}
	}
	return entries
}

// Lookup returns all pins whose normalized name matches name.
func (m *Manifest) Lookup(name string) []*Entry {
	want := NormalizeName(name)
	var found []*Entry
	for _, e := range m.Entries() {
		if e.NormalizedName() == want {
			found = append(found, e)
		}
	}
	return found
}

// Render re-renders the manifest. Entries come out in canonical form
// (name[extras]==version followed by two spaces and the comment); blank,
// comment and invalid lines keep their original text. Rendering a parsed
// canonical manifest reproduces it byte for byte.
func (m *Manifest) Render() string {
	var b strings.Builder
	for _, line := range m.Lines {
		switch line.Kind {
		case KindEntry:
			b.WriteString(line.Entry.Canonical())
		default:
			b.WriteString(line.Raw)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Canonical returns the canonical single-line form of the entry.
func (e *Entry) Canonical() string {
	var b strings.Builder
	b.WriteString(e.Name)
	if len(e.Extras) > 0 {
		b.WriteByte('[')
		b.WriteString(strings.Join(e.Extras, ","))
		b.WriteByte(']')
	}
	b.WriteString("==")
	b.WriteString(e.Version)
	if e.Comment != "" {
		b.WriteString("  # ")
		b.WriteString(e.Comment)
	}
	return b.String()
}
