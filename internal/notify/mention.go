package notify

import (
	"regexp"
	"slices"
	"strings"
)

// mentionPattern matches @user tokens at the start of the text or after
// whitespace, so email addresses are not picked up.
var mentionPattern = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9_][A-Za-z0-9._-]*)`)

// ExtractMentions returns the user ids mentioned in text, without the @,
// deduplicated, in order of first appearance. Trailing dots and hyphens are
// treated as punctuation.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var ids []string
	for _, m := range matches {
		id := strings.TrimRight(m[1], ".-")
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
