package world

import (
	"fmt"
	"strings"
)

// BranchPrefix namespaces every sandbox branch in the base repository.
const BranchPrefix = "fiveworlds/"

// SandboxName is {world}-issue-{ticket}-{task}[-{runTag}]. The run tag keeps
// repeated runs of the same task and ticket from colliding.
func SandboxName(id ID, ticket int, taskID, runTag string) string {
	name := fmt.Sprintf("%s-issue-%d-%s", id.Slug(), ticket, Slug(taskID))
	if tag := Slug(runTag); tag != "" {
		name += "-" + tag
	}
	return name
}

// IssuePrefix returns the name prefix shared by every sandbox of id for ticket.
func IssuePrefix(id ID, ticket int) string {
	return fmt.Sprintf("%s-issue-%d-", id.Slug(), ticket)
}

// IsIssueSandbox reports whether name belongs to any world of ticket.
func IsIssueSandbox(name string, ticket int) bool {
	for _, id := range All() {
		if strings.HasPrefix(name, IssuePrefix(id, ticket)) {
			return true
		}
	}
	return false
}

// Slug lowercases s and collapses anything outside [a-z0-9] into single
// dashes so the result is safe as a path element and a git ref component.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
