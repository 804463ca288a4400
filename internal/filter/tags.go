package filter

import (
	"regexp"
	"sort"
	"strings"
)

// tagToken matches #tag markers in free text. Tags are word-shaped; a bare
// '#' or punctuation-only token is not a tag.
var tagToken = regexp.MustCompile(`#([A-Za-z0-9][A-Za-z0-9_-]*)`)

// ExtractTags returns the set of tags embedded in free text, lowercased,
// deduplicated and sorted. Pure function of its input.
func ExtractTags(text string) []string {
	matches := tagToken.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	sort.Strings(tags)
	return tags
}
