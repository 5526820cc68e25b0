// Package shellsafe builds shell command strings that are safe to hand to an
// agent for copy-paste or direct execution. Free-text values are quoted so
// they expand to exactly one word; structural identifiers (bead ids, review
// ids, workspace names, agent/project names) are checked against strict
// grammars and only interpolated raw when they pass.
package shellsafe

import "strings"

// Escape wraps s in single quotes so the shell expands it to exactly one
// word equal to s. Embedded single quotes become '\'' (close, escaped
// quote, reopen). Works for any NUL-free input including backticks, $,
// double quotes, and newlines.
func Escape(s string) string {
	if s == "" {
		return "''"
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			b.WriteString(`'\''`)
			continue
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('\'')
	return b.String()
}

// WorkspaceToken is the placeholder the step executor resolves to the
// created workspace name. Builders accept it wherever a workspace name
// goes, so steps can reference a workspace that does not exist yet.
const WorkspaceToken = "$WS"

// shellMeta lists the characters that disqualify a value from raw
// interpolation as an agent or project identifier.
const shellMeta = " \t\n\"'`$\\!&|;()<>*?[]{}#~\x00"

// ValidBeadID reports whether id looks like a bead/bone issue id:
// non-empty, at most 20 characters, contains a hyphen, and is made of
// alphanumerics and hyphens only.
func ValidBeadID(id string) bool {
	if id == "" || len(id) > 20 || !strings.Contains(id, "-") {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isAlnum(id[i]) && id[i] != '-' {
			return false
		}
	}
	return true
}

// ValidReviewID reports whether id is a review id: "cr-" followed by one
// or more alphanumerics.
func ValidReviewID(id string) bool {
	if !strings.HasPrefix(id, "cr-") {
		return false
	}
	rest := id[3:]
	if rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if !isAlnum(rest[i]) {
			return false
		}
	}
	return true
}

// ValidWorkspaceName reports whether name is a workspace name: starts with
// an alphanumeric, at most 64 characters, alphanumerics and hyphens only.
func ValidWorkspaceName(name string) bool {
	if name == "" || len(name) > 64 || !isAlnum(name[0]) {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isAlnum(name[i]) && name[i] != '-' {
			return false
		}
	}
	return true
}

// ValidIdentifier reports whether s is usable as an agent or project
// identifier: non-empty and free of shell metacharacters.
func ValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, shellMeta)
}

// ident returns s raw when it passes check, escaped otherwise. Callers are
// supposed to validate first and fail closed; this is the backstop for the
// ones that don't.
func ident(s string, check func(string) bool) string {
	if check(s) {
		return s
	}
	return Escape(s)
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
