package matcher

import (
	"strings"
	"unicode"
)

// flagBoundary marks the start of a generic `--name value` argument.
const flagBoundary = " --"

// ExtractFlags splits message into its generic flags and the remaining command
// text. Flags are peeled off from the right: the last " --" boundary is
// consumed first, its name is the run of non-space characters after "--" and
// its value is the trimmed rest of the segment. A flag without a value is
// "true". When a name repeats, the rightmost occurrence wins.
//
// A boundary with no name after it ("foo -- bar") ends extraction and stays
// part of the command text.
func ExtractFlags(message string) (map[string]string, string) {
	flags := make(map[string]string)
	rest := message

	for {
		idx := strings.LastIndex(rest, flagBoundary)
		if idx < 0 {
			break
		}
		name, value, ok := parseFlag(rest[idx+len(flagBoundary):])
		if !ok {
			break
		}
		if _, seen := flags[name]; !seen {
			flags[name] = value
		}
		rest = rest[:idx]
	}

	return flags, strings.TrimSpace(rest)
}

func parseFlag(segment string) (name, value string, ok bool) {
	end := strings.IndexFunc(segment, unicode.IsSpace)
	if end < 0 {
		end = len(segment)
	}
	name = segment[:end]
	if name == "" {
		return "", "", false
	}
	value = strings.TrimSpace(segment[end:])
	if value == "" {
		value = "true"
	}
	return name, value, true
}
