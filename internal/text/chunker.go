package text

import (
	"regexp"
	"strings"
)

// Approximate characters per embedding token.
const charsPerToken = 4

var (
	headerRe   = regexp.MustCompile(`(?m)^#{1,6}\s`)
	tableRowRe = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	linkLineRe = regexp.MustCompile(`^\s*[-*]?\s*\[.*?\]\(.*?\)\s*$`)
	imageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

var boilerplate = []string{
	"we use cookies",
	"accept all cookies",
	"subscribe to our newsletter",
	"all rights reserved",
	"privacy policy",
	"terms of service",
	"©",
}

// Clean removes images and collapses blank runs left behind by HTML
// conversion.
func Clean(md string) string {
	md = imageRe.ReplaceAllString(md, "")
	md = blankRunRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}

// IsNoise reports chunks not worth embedding: short labels, link lists and
// short legal or cookie boilerplate.
func IsNoise(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}

	if len(trimmed) < 30 && len(strings.Fields(trimmed)) <= 3 && !strings.Contains(trimmed, "\n") {
		return true
	}

	lines := nonEmpty(strings.Split(trimmed, "\n"))
	if len(lines) > 2 {
		links := 0
		for _, l := range lines {
			if linkLineRe.MatchString(l) {
				links++
			}
		}
		if float64(links)/float64(len(lines)) > 0.7 {
			return true
		}
	}

	if len(trimmed) < 200 {
		lower := strings.ToLower(trimmed)
		for _, b := range boilerplate {
			if strings.Contains(lower, b) {
				return true
			}
		}
	}
	return false
}

// ChunkMarkdown splits markdown into chunks of at most maxTokens, breaking on
// headers, then paragraphs, then lines, then words. Tables stay whole when
// they fit. Noise chunks are dropped.
func ChunkMarkdown(md string, maxTokens int) []string {
	md = Clean(md)
	if md == "" {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	maxChars := maxTokens * charsPerToken

	var chunks []string
	for _, section := range sections(md) {
		if len(section) <= maxChars {
			chunks = append(chunks, section)
			continue
		}
		chunks = append(chunks, splitSection(section, maxChars)...)
	}

	out := chunks[:0]
	for _, c := range chunks {
		if !IsNoise(c) {
			out = append(out, c)
		}
	}
	return out
}

func sections(md string) []string {
	var out []string
	last := 0
	for _, loc := range headerRe.FindAllStringIndex(md, -1) {
		if loc[0] > last {
			out = appendTrimmed(out, md[last:loc[0]])
		}
		last = loc[0]
	}
	return appendTrimmed(out, md[last:])
}

// splitSection packs paragraphs into chunks no longer than maxChars.
func splitSection(section string, maxChars int) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && cur.Len()+len(sep)+len(piece) > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	for _, para := range strings.Split(section, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxChars {
			add(para, "\n\n")
			continue
		}

		flush()
		table := isTable(para)
		for _, line := range strings.Split(para, "\n") {
			if len(line) <= maxChars {
				add(line, "\n")
				continue
			}
			if table {
				// An oversized row is still one row.
				flush()
				chunks = append(chunks, line)
				continue
			}
			for _, word := range strings.Fields(line) {
				add(word, " ")
			}
		}
		flush()
	}
	flush()
	return chunks
}

func isTable(para string) bool {
	lines := strings.Split(para, "\n")
	for _, l := range lines {
		if !tableRowRe.MatchString(l) {
			return false
		}
	}
	return len(lines) > 1
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

func nonEmpty(lines []string) []string {
	var result []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			result = append(result, l)
		}
	}
	return result
}
