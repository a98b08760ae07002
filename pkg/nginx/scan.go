package nginx

import (
	"strings"
)

// Block is one balanced-brace block lifted out of a config file.
type Block struct {
	Header string // directive text before the opening brace, trimmed
	Body   string // text between the braces, outer braces excluded
	Start  int    // byte offset of the first header character
	End    int    // byte offset one past the closing brace
}

// ScanBlocks extracts top-level blocks from nginx config text by walking
// the brace structure. Braces inside quoted strings and comments do not
// count, so directive bodies like `return 200 "{}"` scan correctly. Text
// between blocks (comments, bare directives) is ignored.
func ScanBlocks(src string) []Block {
	var blocks []Block

	depth := 0
	headerStart := 0
	blockStart := -1
	bodyStart := -1

	i := 0
	for i < len(src) {
		c := src[i]

		switch {
		case c == '#':
			// comment runs to end of line
			commentAt := i
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if depth == 0 && strings.TrimSpace(src[headerStart:commentAt]) == "" {
				headerStart = i + 1
			}
			continue
		case c == '\'' || c == '"':
			quote := c
			i++
			for i < len(src) {
				if src[i] == '\\' {
					i += 2
					continue
				}
				if src[i] == quote {
					break
				}
				i++
			}
		case c == '{':
			if depth == 0 {
				blockStart = headerStart
				bodyStart = i + 1
			}
			depth++
		case c == '}':
			depth--
			if depth == 0 && blockStart >= 0 {
				blocks = append(blocks, Block{
					Header: strings.TrimSpace(src[blockStart:bodyStart-1]),
					Body:   src[bodyStart:i],
					Start:  blockStart,
					End:    i + 1,
				})
				blockStart = -1
				headerStart = i + 1
			}
		case c == ';':
			if depth == 0 {
				headerStart = i + 1
			}
		case c == '\n':
			if depth == 0 && strings.TrimSpace(src[headerStart:i]) == "" {
				headerStart = i + 1
			}
		}

		i++
	}

	return blocks
}

// isServerBlock reports whether a block is a server virtual host
func isServerBlock(b Block) bool {
	fields := strings.Fields(b.Header)
	return len(fields) > 0 && fields[0] == "server"
}

// isLocationBlock reports whether a block is a location, returning its path
func isLocationBlock(b Block) (string, bool) {
	fields := strings.Fields(b.Header)
	if len(fields) < 2 || fields[0] != "location" {
		return "", false
	}
	// path is the last field; modifiers like ~ or = precede it
	return fields[len(fields)-1], true
}
