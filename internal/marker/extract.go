package marker

import "strings"

// MarkerLine is one successfully-parsed marker directive: its name, the
// pipe-delimited fields after arity validation, and the original source
// line (needed to strip the exact line back out of the assistant's text).
type MarkerLine struct {
	Name   Name
	Fields []string
	Raw    string
}

// ExtractAndStrip scans text line by line. Lines matching a known marker
// prefix whose field count satisfies the marker's arity are collected into
// matched and removed from the returned stripped text; lines whose prefix
// matches but whose arity is wrong are left in place and reported in
// parseErrors (§4.3's "reject lines whose payload arity does not match"
// rule — "reject" means "leave alone", not "delete"). Blank lines left
// behind by removed marker lines are collapsed.
func ExtractAndStrip(text string) (matched []MarkerLine, parseErrors []string, stripped string) {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			kept = append(kept, line)
			continue
		}

		name, payload, ok := matchPrefix(trimmed)
		if !ok {
			kept = append(kept, line)
			continue
		}

		fields := splitFields(payload)
		if !validArity(name, len(fields)) {
			parseErrors = append(parseErrors, trimmed)
			kept = append(kept, line)
			continue
		}

		matched = append(matched, MarkerLine{Name: name, Fields: fields, Raw: line})
	}

	stripped = collapseBlankLines(kept)
	return matched, parseErrors, stripped
}

// matchPrefix finds the marker prefix a trimmed line starts with, returning
// its Name and the remaining payload text (empty for zero-arity markers).
func matchPrefix(trimmed string) (Name, string, bool) {
	for prefix, name := range prefixes {
		if !strings.HasSuffix(prefix, ":") {
			if trimmed == prefix {
				return name, "", true
			}
			continue
		}
		if strings.HasPrefix(trimmed, prefix) {
			return name, strings.TrimSpace(trimmed[len(prefix):]), true
		}
	}
	return "", "", false
}

func collapseBlankLines(lines []string) string {
	out := make([]string, 0, len(lines))
	prevBlank := false
	for _, l := range lines {
		blank := strings.TrimSpace(l) == ""
		if blank && prevBlank {
			continue
		}
		out = append(out, l)
		prevBlank = blank
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
