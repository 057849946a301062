package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Severity grades an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueCode identifies an issue class for machine consumers.
type IssueCode string

const (
	// IssueInvalidLine marks a non-blank, non-comment line outside the
	// name==version grammar.
	IssueInvalidLine IssueCode = "invalid-line"
	// IssueInvalidVersion marks a version string with characters outside
	// the version grammar.
	IssueInvalidVersion IssueCode = "invalid-version"
	// IssueNonSemverVersion notes a structurally valid pin that strict
	// semver cannot parse (post-releases, epochs and similar).
	IssueNonSemverVersion IssueCode = "non-semver-version"
	// IssueConflictingPin marks two pins of one package to different
	// versions.
	IssueConflictingPin IssueCode = "conflicting-pin"
	// IssueDuplicatePin marks a repeated identical pin.
	IssueDuplicatePin IssueCode = "duplicate-pin"
	// IssueDanglingReference marks a comment naming a known package that
	// the manifest does not declare.
	IssueDanglingReference IssueCode = "dangling-reference"
	// IssueCommentPinConflict marks a commented-out pin that disagrees
	// with the active pin of the same package.
	IssueCommentPinConflict IssueCode = "comment-pin-conflict"
)

// Issue is a single validation finding.
type Issue struct {
	Line     int       `json:"line" yaml:"line"`
	Severity Severity  `json:"severity" yaml:"severity"`
	Code     IssueCode `json:"code" yaml:"code"`
	Message  string    `json:"message" yaml:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s: %s [%s]", i.Line, i.Severity, i.Message, i.Code)
}

// Options tunes validation.
type Options struct {
	// KnownPackages extends the vocabulary used for comment reference
	// checking: a comment token matching one of these names must
	// correspond to a declared entry. The manifest's own entry names are
	// always part of the vocabulary.
	KnownPackages []string
}

var commentTokenRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9._-]+`)

// Validate runs all structural checks and returns the findings ordered by
// line number: line grammar, pin conflicts and duplicates, version shape,
// and comment consistency against the declared entries.
func (m *Manifest) Validate(opts Options) []Issue {
	var issues []Issue

	issues = append(issues, m.checkLines()...)
	issues = append(issues, m.checkPins()...)
	issues = append(issues, m.checkVersions()...)
	issues = append(issues, m.checkComments(opts)...)

	sort.SliceStable(issues, func(a, b int) bool { return issues[a].Line < issues[b].Line })
	return issues
}

func (m *Manifest) checkLines() []Issue {
	var issues []Issue
	for _, line := range m.Lines {
		if line.Kind == KindInvalid {
			issues = append(issues, Issue{
				Line:     line.Number,
				Severity: SeverityError,
				Code:     IssueInvalidLine,
				Message:  fmt.Sprintf("%s: %q", line.BadReason, strings.TrimSpace(line.Raw)),
			})
		}
	}
	return issues
}

func (m *Manifest) checkPins() []Issue {
	var issues []Issue
	first := make(map[string]*Entry)
	for _, e := range m.Entries() {
		key := e.NormalizedName()
		prev, seen := first[key]
		if !seen {
			first[key] = e
			continue
		}
		if prev.Version == e.Version {
			issues = append(issues, Issue{
				Line:     e.Line,
				Severity: SeverityWarning,
				Code:     IssueDuplicatePin,
				Message:  fmt.Sprintf("%s==%s repeats the pin from line %d", e.Name, e.Version, prev.Line),
			})
			continue
		}
		issues = append(issues, Issue{
			Line:     e.Line,
			Severity: SeverityError,
			Code:     IssueConflictingPin,
			Message: fmt.Sprintf("%s==%s conflicts with %s==%s on line %d",
				e.Name, e.Version, prev.Name, prev.Version, prev.Line),
		})
	}
	return issues
}

func (m *Manifest) checkVersions() []Issue {
	var issues []Issue
	for _, e := range m.Entries() {
		if !versionRe.MatchString(e.Version) {
			issues = append(issues, Issue{
				Line:     e.Line,
				Severity: SeverityError,
				Code:     IssueInvalidVersion,
				Message:  fmt.Sprintf("version %q of %s is not a valid version string", e.Version, e.Name),
			})
			continue
		}
		if _, err := semver.NewVersion(e.Version); err != nil {
			issues = append(issues, Issue{
				Line:     e.Line,
				Severity: SeverityInfo,
				Code:     IssueNonSemverVersion,
				Message:  fmt.Sprintf("version %q of %s is not strict semver", e.Version, e.Name),
			})
		}
	}
	return issues
}

func (m *Manifest) checkComments(opts Options) []Issue {
	var issues []Issue

	declared := make(map[string]*Entry)
	for _, e := range m.Entries() {
		if _, ok := declared[e.NormalizedName()]; !ok {
			declared[e.NormalizedName()] = e
		}
	}
	vocabulary := make(map[string]string)
	for _, name := range opts.KnownPackages {
		vocabulary[NormalizeName(name)] = name
	}

	for _, line := range m.Lines {
		var comment string
		switch line.Kind {
		case KindComment:
			comment = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line.Raw), "#"))
		case KindEntry:
			comment = line.Entry.Comment
		default:
			continue
		}
		if comment == "" {
			continue
		}

		// A commented-out pin names its package unambiguously.
		if match := entryRe.FindStringSubmatch(comment); match != nil {
			name, version := match[1], match[3]
			if active, ok := declared[NormalizeName(name)]; ok && active.Version != version {
				issues = append(issues, Issue{
					Line:     line.Number,
					Severity: SeverityWarning,
					Code:     IssueCommentPinConflict,
					Message: fmt.Sprintf("comment pins %s==%s but line %d pins %s==%s",
						name, version, active.Line, active.Name, active.Version),
				})
			}
			continue
		}

		for _, token := range commentTokenRe.FindAllString(comment, -1) {
			key := NormalizeName(token)
			if _, declaredHere := declared[key]; declaredHere {
				continue
			}
			if known, ok := vocabulary[key]; ok {
				issues = append(issues, Issue{
					Line:     line.Number,
					Severity: SeverityError,
					Code:     IssueDanglingReference,
					Message:  fmt.Sprintf("comment references %s, which the manifest does not declare", known),
				})
			}
		}
	}
	return issues
}

// Report aggregates validation results for presentation.
type Report struct {
	Valid    bool    `json:"valid" yaml:"valid"`
	Packages int     `json:"packages" yaml:"packages"`
	Errors   int     `json:"errors" yaml:"errors"`
	Warnings int     `json:"warnings" yaml:"warnings"`
	Infos    int     `json:"infos" yaml:"infos"`
	Issues   []Issue `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// BuildReport validates the manifest and aggregates the findings. A
// manifest is valid when no error-severity issue was found.
func (m *Manifest) BuildReport(opts Options) Report {
	issues := m.Validate(opts)
	r := Report{
		Packages: len(m.Entries()),
		Issues:   issues,
	}
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			r.Errors++
		case SeverityWarning:
			r.Warnings++
		default:
			r.Infos++
		}
	}
	r.Valid = r.Errors == 0
	return r
}

// Text renders the report for terminal output.
func (r Report) Text() string {
	var b strings.Builder
	for _, issue := range r.Issues {
		b.WriteString(issue.String())
		b.WriteByte('\n')
	}
	if r.Valid {
		fmt.Fprintf(&b, "OK: %d packages, %d warnings, %d notes\n", r.Packages, r.Warnings, r.Infos)
	} else {
		fmt.Fprintf(&b, "FAIL: %d errors, %d warnings in %d packages\n", r.Errors, r.Warnings, r.Packages)
	}
	return b.String()
}
