// Package importer turns Markdown notes (an Obsidian vault or any folder of
// .md files) into memories, one per sentence.
package importer

import (
	"bufio"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/alphalite/internal/storage"
)

// Note is a parsed Markdown file.
type Note struct {
	// RelativePath is the path relative to the import root.
	RelativePath string `json:"path"`

	// Title comes from the frontmatter, the first H1 heading or the file name.
	Title string `json:"title"`

	// Sentences are the body's sentences in reading order, Markdown syntax
	// removed.
	Sentences []string `json:"sentences"`
}

// minSentenceLen drops fragments like list numbering or stray punctuation.
const minSentenceLen = 3

var (
	mdLinkRe     = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	wikiLinkRe   = regexp.MustCompile(`(!?)\[\[([^\[\]|#]*)(?:#[^\[\]|]*)?(?:\|([^\[\]]*))?\]\]`)
	listMarkerRe = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+(?:\[[ xX]\]\s+)?`)
	sentenceEnd  = regexp.MustCompile(`([.!?])\s+`)
	emphasis     = strings.NewReplacer("**", "", "__", "", "`", "", "~~", "")
)

// ParseNote parses a Markdown file's content. relativePath names the file
// in errors and provides the fallback title.
func ParseNote(content []byte, relativePath string) (*Note, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, goerr.Wrap(errors.Join(storage.ErrInvalidInput, err), "frontmatter parse error", goerr.V("path", relativePath))
	}

	title := extractString(fm, "title", "")
	if title == "" {
		title = extractH1(body)
	}
	if title == "" {
		title = titleFromPath(relativePath)
	}

	return &Note{
		RelativePath: relativePath,
		Title:        title,
		Sentences:    Sentences(body),
	}, nil
}

// Sentences splits a Markdown body into plain sentences. Headings, code
// blocks, tables and horizontal rules are skipped; every paragraph or list
// item ends a sentence.
func Sentences(body string) []string {
	var (
		out   []string
		para  []string
		fence bool
	)
	flush := func() {
		if len(para) == 0 {
			return
		}
		text := strings.Join(para, " ")
		para = para[:0]
		for _, s := range splitSentences(text) {
			if len([]rune(s)) >= minSentenceLen && hasLetter(s) {
				out = append(out, s)
			}
		}
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			flush()
			fence = !fence
			continue
		}
		switch {
		case fence:
			continue
		case trimmed == "", strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "|"),
			strings.Trim(trimmed, "-*_ ") == "":
			flush()
			continue
		}

		trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "> "))
		if listMarkerRe.MatchString(trimmed) {
			flush()
			trimmed = listMarkerRe.ReplaceAllString(trimmed, "")
		}
		para = append(para, plainInline(trimmed))
	}
	flush()
	return out
}

// plainInline reduces a line's inline Markdown to the words a reader sees.
// Links keep their label: a wiki link shows its alias, else its target
// without the #section part. Embeds (![[file]]) and images vanish.
func plainInline(line string) string {
	line = wikiLinkRe.ReplaceAllStringFunc(line, func(match string) string {
		m := wikiLinkRe.FindStringSubmatch(match)
		switch {
		case m[1] == "!":
			return ""
		case strings.TrimSpace(m[3]) != "":
			return strings.TrimSpace(m[3])
		}
		return strings.TrimSpace(m[2])
	})
	line = mdLinkRe.ReplaceAllStringFunc(line, func(match string) string {
		if strings.HasPrefix(match, "!") {
			return ""
		}
		return mdLinkRe.FindStringSubmatch(match)[1]
	})
	return emphasis.Replace(line)
}

func splitSentences(text string) []string {
	text = sentenceEnd.ReplaceAllString(text, "$1\n")
	var out []string
	for _, s := range strings.Split(text, "\n") {
		if s = strings.Join(strings.Fields(s), " "); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the Markdown body. Returns empty map and full text when no frontmatter found.
func splitFrontmatter(text string) (map[string]interface{}, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]interface{}{}, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		// No closing delimiter - treat entire file as body.
		return map[string]interface{}{}, text, nil
	}

	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return map[string]interface{}{}, text, goerr.Wrap(err, "invalid YAML")
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// titleFromPath derives a human-readable title from the file name (no extension).
func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

// extractH1 returns the text of the first ATX heading (# ...) found in the body.
func extractH1(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// extractString pulls a string value from frontmatter by key with a default.
func extractString(fm map[string]interface{}, key, defaultVal string) string {
	v, ok := fm[key]
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return defaultVal
}
