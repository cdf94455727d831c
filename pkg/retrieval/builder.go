package retrieval

import (
	"regexp"
	"strings"
)

// UnknownFile groups fragments whose text carries no recognizable path.
const UnknownFile = "unknown"

// labelScanLimit bounds how far into a fragment path labels are searched.
const labelScanLimit = 300

//nolint:gochecknoglobals // ordered lookup table, first match wins
var fileLabelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`#\s*[Ff]ile:\s*(.+)`),
	regexp.MustCompile(`[Ff]ile\s*[Pp]ath:\s*(.+)`),
	regexp.MustCompile(`[Ss]ource:\s*(.+)`),
	regexp.MustCompile(`(watched_folder/[^\s"']+\.[a-zA-Z0-9]+)`),
	regexp.MustCompile(`([\w\-/]+\.(py|js|ts|md|json|yaml|yml|txt))`),
}

const (
	contextPreamble   = "Here are the most relevant snippets from the LIVE codebase."
	contextGrouping   = "Snippets are grouped by file to preserve structure.\n"
	contextFence      = "```"
	contextFilePrefix = "FILE: "
)

// ExtractFilePath finds the file label in the head of a fragment's text.
// It returns "" when no pattern matches.
func ExtractFilePath(text string) string {
	head := text
	if runes := []rune(text); len(runes) > labelScanLimit {
		head = string(runes[:labelScanLimit])
	}
	for _, p := range fileLabelPatterns {
		if m := p.FindStringSubmatch(head); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// BuildContext serializes fragments into one prompt block, grouped by file in
// order of first appearance. Chunks keep retrieval order inside their group.
// No fragments yield "".
func BuildContext(fragments []Fragment) string {
	if len(fragments) == 0 {
		return ""
	}

	var order []string
	groups := make(map[string][]string)
	for _, f := range fragments {
		text := strings.TrimSpace(f.Text)
		path := ExtractFilePath(text)
		if path == "" {
			path = UnknownFile
		}
		if _, seen := groups[path]; !seen {
			order = append(order, path)
		}
		groups[path] = append(groups[path], text)
	}

	parts := []string{contextPreamble, contextGrouping}
	for _, path := range order {
		parts = append(parts, contextFilePrefix+path)
		for _, chunk := range groups[path] {
			parts = append(parts, contextFence, chunk, contextFence)
		}
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}
