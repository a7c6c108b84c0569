package registry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = time.Second

// Pattern is a compiled command pattern. The source text is kept verbatim for
// the catalog; matching always requires the whole input to be consumed.
type Pattern struct {
	source   string
	names    []string
	anchored *regexp2.Regexp
}

// CompilePattern compiles src into a case-insensitive, anchored pattern.
func CompilePattern(src string, timeout time.Duration) (*Pattern, error) {
	raw, err := regexp2.Compile(src, regexp2.IgnoreCase)
	if err != nil {
		return nil, &RegistryError{Code: CodeInvalidPattern, Message: fmt.Sprintf("invalid pattern %q: %v", src, err)}
	}
	anchored, err := regexp2.Compile(`\A(?:`+src+`)\z`, regexp2.IgnoreCase)
	if err != nil {
		return nil, &RegistryError{Code: CodeInvalidPattern, Message: fmt.Sprintf("invalid pattern %q: %v", src, err)}
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	anchored.MatchTimeout = timeout

	var names []string
	for _, n := range raw.GetGroupNames() {
		// regexp2 reports unnamed groups by their number
		if _, err := strconv.Atoi(n); err == nil {
			continue
		}
		names = append(names, n)
	}

	return &Pattern{source: src, names: names, anchored: anchored}, nil
}

// Source returns the pattern text as registered.
func (p *Pattern) Source() string {
	return p.source
}

// GroupNames returns the named capture groups in declaration order.
func (p *Pattern) GroupNames() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Match reports whether text matches the whole pattern and returns the named
// groups that took part in the match.
func (p *Pattern) Match(text string) (map[string]string, bool, error) {
	m, err := p.anchored.FindStringMatch(text)
	if err != nil {
		return nil, false, fmt.Errorf("registry:pattern - evaluating %q: %w", p.source, err)
	}
	if m == nil {
		return nil, false, nil
	}
	captures := make(map[string]string, len(p.names))
	for _, name := range p.names {
		g := m.GroupByName(name)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		captures[name] = g.String()
	}
	return captures, true, nil
}
