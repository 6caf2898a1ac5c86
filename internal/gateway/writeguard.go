package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// Class is the outcome of lexical statement classification.
type Class int

const (
	NonMutating Class = iota
	Mutating
)

func (c Class) String() string {
	if c == Mutating {
		return "mutating"
	}
	return "non-mutating"
}

// mutatingPrefixes are matched against the trimmed, upper-cased statement.
// Only the prefix is inspected: comments, CTEs and batches are not.
var mutatingPrefixes = []string{"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE"}

// Classify reports whether sql begins with a mutating keyword.
func Classify(sql string) Class {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	for _, p := range mutatingPrefixes {
		if strings.HasPrefix(upper, p) {
			return Mutating
		}
	}
	return NonMutating
}

// WriteGuard gates SQL text before it reaches the store.
type WriteGuard struct {
	AllowWrite bool
	// Strict enables the string/comment-aware validator on top of the
	// prefix check. It is only consulted while writes are disallowed.
	Strict  bool
	Dialect Dialect
}

// Enforce returns a policy violation for SQL the guard does not permit.
func (g WriteGuard) Enforce(sql string) error {
	if g.AllowWrite {
		return nil
	}
	if Classify(sql) == Mutating {
		return PolicyViolation("Write operations are not allowed. Set DANGEROUSLY_ALLOW_WRITE_OPS=true to enable.")
	}
	if g.Strict && g.Dialect != nil {
		if err := g.Dialect.StrictRules().Validate(sql); err != nil {
			return PolicyViolation("Query rejected: %v", err)
		}
	}
	return nil
}

// patternRule is a forbidden construct matched against the raw statement.
type patternRule struct {
	pattern string
	desc    string
}

type compiledRule struct {
	re   *regexp.Regexp
	desc string
}

// StrictRules is a dialect's configuration of the strict validator.
type StrictRules struct {
	lex      lexRules
	keywords []compiledRule
	patterns []compiledRule
}

// commonKeywords are blocked anywhere in the statement by every dialect.
var commonKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE"}

var (
	allowedStrictPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "VALUES"}
	setStatement          = regexp.MustCompile(`(?i)(?:^|;)\s*SET\b`)
)

func keywordRule(kw string) compiledRule {
	return compiledRule{
		re:   regexp.MustCompile(`(?i)(?:^|[^a-zA-Z_])` + kw + `(?:[^a-zA-Z_]|$)`),
		desc: kw,
	}
}

func newStrictRules(lex lexRules, extraKeywords []string, patterns []patternRule) StrictRules {
	r := StrictRules{lex: lex}
	for _, kw := range append(append([]string{}, commonKeywords...), extraKeywords...) {
		r.keywords = append(r.keywords, keywordRule(kw))
	}
	for _, p := range patterns {
		r.patterns = append(r.patterns, compiledRule{re: regexp.MustCompile(p.pattern), desc: p.desc})
	}
	return r
}

// Validate rejects anything but a single read-only statement. Keywords are
// matched after string literals and comments are removed.
func (r StrictRules) Validate(sqlQuery string) error {
	trimmed := strings.TrimSpace(sqlQuery)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}

	cleaned := r.lex.strip(sqlQuery)
	upper := strings.ToUpper(strings.TrimSpace(cleaned))

	allowed := false
	for _, p := range allowedStrictPrefixes {
		if upper == p || strings.HasPrefix(upper, p+" ") || strings.HasPrefix(upper, p+"\n") || strings.HasPrefix(upper, p+"\t") || strings.HasPrefix(upper, p+"(") {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("only SELECT, WITH, SHOW, DESCRIBE, EXPLAIN and VALUES queries are allowed")
	}

	if _, rest, found := strings.Cut(cleaned, ";"); found && strings.TrimSpace(rest) != "" {
		return fmt.Errorf("multiple statements are not allowed")
	}

	for _, k := range r.keywords {
		if k.re.MatchString(cleaned) {
			return fmt.Errorf("query contains forbidden keyword: %s", k.desc)
		}
	}

	if setStatement.MatchString(cleaned) {
		return fmt.Errorf("SET statements are not allowed")
	}

	for _, p := range r.patterns {
		if p.re.MatchString(sqlQuery) {
			return fmt.Errorf("query contains forbidden pattern: %s", p.desc)
		}
	}
	return nil
}

// RemoveStringsAndComments exposes the dialect-aware stripper used by Validate.
func (r StrictRules) RemoveStringsAndComments(sql string) string {
	return r.lex.strip(sql)
}

// lexRules describes how a dialect quotes strings and identifiers.
type lexRules struct {
	hashComments     bool // # starts a line comment
	backslashEscapes bool // \ escapes inside quoted strings
	dollarQuotes     bool // $tag$...$tag$ strings
	doubleQuoteIdent bool // "..." is an identifier (kept) rather than a string
	backticks        bool // `...` identifiers
	brackets         bool // [...] identifiers
}

// strip replaces string literals with empty placeholders and comments with a
// single space, leaving identifiers intact.
func (l lexRules) strip(sql string) string {
	var out strings.Builder
	i, n := 0, len(sql)

	skipLine := func() {
		for i < n && sql[i] != '\n' {
			i++
		}
		out.WriteByte(' ')
	}
	skipQuoted := func(q byte) {
		i++
		for i < n {
			if sql[i] == q {
				if i+1 < n && sql[i+1] == q {
					i += 2
					continue
				}
				i++
				return
			}
			if l.backslashEscapes && sql[i] == '\\' && i+1 < n {
				i += 2
				continue
			}
			i++
		}
	}
	copyQuoted := func(open, close byte, doubled bool) {
		out.WriteByte(open)
		i++
		for i < n {
			if sql[i] == close {
				if doubled && i+1 < n && sql[i+1] == close {
					out.WriteByte(close)
					out.WriteByte(close)
					i += 2
					continue
				}
				out.WriteByte(close)
				i++
				return
			}
			out.WriteByte(sql[i])
			i++
		}
	}

	for i < n {
		c := sql[i]
		switch {
		case c == '-' && i+1 < n && sql[i+1] == '-':
			skipLine()
		case c == '#' && l.hashComments:
			skipLine()
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			out.WriteByte(' ')
		case c == '$' && l.dollarQuotes && l.dollarString(sql, &i):
			out.WriteString("''")
		case c == '\'':
			skipQuoted('\'')
			out.WriteString("''")
		case c == '"' && l.doubleQuoteIdent:
			copyQuoted('"', '"', true)
		case c == '"':
			skipQuoted('"')
			out.WriteString(`""`)
		case c == '`' && l.backticks:
			copyQuoted('`', '`', false)
		case c == '[' && l.brackets:
			copyQuoted('[', ']', false)
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// dollarString advances *i past a $tag$...$tag$ literal starting at *i and
// reports whether one was found.
func (l lexRules) dollarString(sql string, i *int) bool {
	tagEnd := strings.IndexByte(sql[*i+1:], '$')
	if tagEnd < 0 {
		return false
	}
	tag := sql[*i : *i+tagEnd+2]
	for _, r := range tag[1 : len(tag)-1] {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	closeIdx := strings.Index(sql[*i+len(tag):], tag)
	if closeIdx < 0 {
		return false
	}
	*i += len(tag) + closeIdx + len(tag)
	return true
}
