package utils

import (
	"regexp"
	"strings"
)

var reFenceOpen = regexp.MustCompile("^\\s*```([a-zA-Z]*)\\s*$")

// CodeBlock is one fenced block mined from an LLM response.
type CodeBlock struct {
	Lang string
	Code string
}

// CodeBlocks extracts fenced code blocks, with their language tag, from a
// markdown string. An unterminated trailing fence still yields its partial
// block; models frequently stop mid-fence.
func CodeBlocks(md string) []CodeBlock {
	var blocks []CodeBlock
	var cur *CodeBlock
	for _, line := range strings.Split(md, "\n") {
		m := reFenceOpen.FindStringSubmatch(line)
		switch {
		case cur == nil && m != nil:
			cur = &CodeBlock{Lang: strings.ToLower(m[1])}
		case cur != nil && strings.HasPrefix(strings.TrimSpace(line), "```"):
			cur.Code = strings.TrimRight(cur.Code, "\n")
			blocks = append(blocks, *cur)
			cur = nil
		case cur != nil:
			cur.Code += line + "\n"
		}
	}
	if cur != nil {
		cur.Code = strings.TrimRight(cur.Code, "\n")
		blocks = append(blocks, *cur)
	}
	return blocks
}
