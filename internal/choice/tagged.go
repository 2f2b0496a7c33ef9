package choice

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// taggedPattern matches one "Choice N: ..." marker. The capture runs to the
// end of the line, so a choice is always a single line of text.
var taggedPattern = regexp.MustCompile(`(?i)choice\s*(\d+)\s*:[ \t]*(.+)`)

// extractTagged collects explicitly tagged choices in numeric order. Ties
// on the same number keep their order of appearance. At most [SlotCount]
// texts are returned.
func extractTagged(text string) []string {
	matches := taggedPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	type tagged struct {
		n    int
		text string
	}
	items := make([]tagged, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue // absurdly long digit run, not a real marker
		}
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		items = append(items, tagged{n: n, text: body})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].n < items[j].n })

	texts := make([]string, 0, len(items))
	for _, it := range items {
		if len(texts) == SlotCount {
			break
		}
		texts = append(texts, it.text)
	}
	return texts
}
