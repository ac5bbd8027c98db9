// Package extract parses free-form assistant replies into structured
// records: prescriptions, health plans, recipe sets, and nutrition
// breakdowns. Parsing is pure and deterministic; each record kind is a
// label table, so adding a kind is a data change rather than new control
// flow.
package extract

import (
	"sort"
	"strings"
)

// Field maps one labeled section to a canonical record field.
type Field struct {
	Label   string // section heading as the model writes it, without the colon
	Key     string
	Default string // substituted when the section is missing
}

// sections slices text by recognized labels. For each label it matches the
// label text followed by a colon (case-insensitive, tolerating markdown
// emphasis) and captures everything up to the next recognized label or end
// of text, trimmed.
func sections(text string, labels []string) map[string]string {
	type marker struct {
		start, end int
		label      string
	}

	lower := strings.ToLower(text)
	markers := make([]marker, 0, len(labels))
	for _, label := range labels {
		needle := strings.ToLower(label) + ":"
		idx := strings.Index(lower, needle)
		if idx < 0 {
			continue
		}
		markers = append(markers, marker{start: idx, end: idx + len(needle), label: label})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].start < markers[j].start })

	out := make(map[string]string, len(markers))
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		out[m.label] = cleanSection(text[m.end:end])
	}
	return out
}

// fill resolves a label table against sliced sections, substituting the
// documented default for every missing field so downstream rendering never
// faces absent data. It reports how many fields were actually found.
func fill(text string, fields []Field) (map[string]string, int) {
	labels := make([]string, len(fields))
	for i, f := range fields {
		labels[i] = f.Label
	}
	found := sections(text, labels)

	out := make(map[string]string, len(fields))
	matched := 0
	for _, f := range fields {
		if v, ok := found[f.Label]; ok && v != "" {
			out[f.Key] = v
			matched++
			continue
		}
		out[f.Key] = f.Default
	}
	return out, matched
}

func cleanSection(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*#")
	return strings.TrimSpace(s)
}

// containsAny reports whether text contains any of the needles,
// case-insensitively. Used by the record-kind classifiers.
func containsAny(text string, needles ...string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
