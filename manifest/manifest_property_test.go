package manifest

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// drawEntry generates a structurally valid pin.
func drawEntry(rt *rapid.T, label string) *Entry {
	e := &Entry{
		Name:    rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9._-]{0,20}[a-zA-Z0-9]`).Draw(rt, label+"-name"),
		Version: rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`).Draw(rt, label+"-version"),
	}
	if rapid.Bool().Draw(rt, label+"-hasComment") {
		e.Comment = rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9 ]{0,30}[a-zA-Z0-9]`).Draw(rt, label+"-comment")
	}
	if rapid.Bool().Draw(rt, label+"-hasExtra") {
		e.Extras = []string{rapid.StringMatching(`[a-z]{2,10}`).Draw(rt, label+"-extra")}
	}
	return e
}

func TestProperty_RenderParseRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 12).Draw(rt, "count")
		var b strings.Builder
		var want []*Entry
		for i := 0; i < count; i++ {
			e := drawEntry(rt, "entry")
			want = append(want, e)
			b.WriteString(e.Canonical())
			b.WriteByte('\n')
		}

		m := ParseString(b.String())

		got := m.Entries()
		if len(got) != len(want) {
			rt.Fatalf("expected %d entries, parsed %d", len(want), len(got))
		}
		for i := range want {
			if got[i].Name != want[i].Name {
				rt.Fatalf("entry %d: name %q != %q", i, got[i].Name, want[i].Name)
			}
			if got[i].Version != want[i].Version {
				rt.Fatalf("entry %d: version %q != %q", i, got[i].Version, want[i].Version)
			}
			if got[i].Comment != want[i].Comment {
				rt.Fatalf("entry %d: comment %q != %q", i, got[i].Comment, want[i].Comment)
			}
		}

		// Canonical text reparses to the identical rendering.
		if m.Render() != b.String() {
			rt.Fatalf("render not canonical:\n%q\nvs\n%q", m.Render(), b.String())
		}
	})
}

func TestProperty_RenderIsFixpoint(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		// Arbitrary text lines: rendering a parse must be stable under a
		// second parse/render cycle, whatever the input.
		lineGen := rapid.StringMatching(`[ -~]{0,40}`)
		count := rapid.IntRange(0, 10).Draw(rt, "count")
		var b strings.Builder
		for i := 0; i < count; i++ {
			b.WriteString(lineGen.Draw(rt, "line"))
			b.WriteByte('\n')
		}

		once := ParseString(b.String()).Render()
		twice := ParseString(once).Render()
		if once != twice {
			rt.Fatalf("render not a fixpoint:\n%q\nvs\n%q", once, twice)
		}
	})
}
