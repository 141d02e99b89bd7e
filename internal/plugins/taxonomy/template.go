package taxonomy

import "strings"

// Node is one element of a parsed level template.
type Node interface {
	node()
}

// Literal is text copied to the output verbatim.
type Literal struct {
	Text string
}

// VariableRef is a [name:format] token.
type VariableRef struct {
	Name   string
	Format Format
}

// Raw returns the token as written in the template.
func (v VariableRef) Raw() string {
	return "[" + v.Name + ":" + string(v.Format) + "]"
}

// Group is a <...> token. Delimiter is the text between its first two
// variables; Inner is the text between the angle brackets.
type Group struct {
	Vars      []VariableRef
	Delimiter string
	Inner     string
}

func (Literal) node()     {}
func (VariableRef) node() {}
func (Group) node()       {}

// Parse splits a level template into literals, variables and groups.
// Malformed brackets never fail: an unmatched '<' or '[' and a bracket
// whose content is not name:format are kept as literal text.
func Parse(template string) []Node {
	var nodes []Node
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			nodes = append(nodes, Literal{Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(template); {
		switch template[i] {
		case '<':
			end := strings.IndexByte(template[i+1:], '>')
			if end <= 0 {
				lit.WriteByte('<')
				i++
				continue
			}
			inner := template[i+1 : i+1+end]
			flush()
			nodes = append(nodes, parseGroup(inner))
			i += end + 2
		case '[':
			end := strings.IndexByte(template[i+1:], ']')
			if end <= 0 {
				lit.WriteByte('[')
				i++
				continue
			}
			raw := template[i : i+end+2]
			v, ok := parseVariable(template[i+1 : i+1+end])
			if !ok {
				lit.WriteString(raw)
			} else {
				flush()
				nodes = append(nodes, v)
			}
			i += end + 2
		default:
			lit.WriteByte(template[i])
			i++
		}
	}
	flush()
	return nodes
}

// parseGroup collects the variable tokens of a group body. The delimiter
// is whatever separates the first two of them.
func parseGroup(inner string) Group {
	g := Group{Inner: inner}
	prevEnd := -1

	for i := 0; i < len(inner); {
		if inner[i] != '[' {
			i++
			continue
		}
		end := strings.IndexByte(inner[i+1:], ']')
		if end <= 0 {
			i++
			continue
		}
		v, ok := parseVariable(inner[i+1 : i+1+end])
		if ok {
			if len(g.Vars) == 1 {
				g.Delimiter = inner[prevEnd:i]
			}
			g.Vars = append(g.Vars, v)
			prevEnd = i + end + 2
		}
		i += end + 2
	}
	return g
}

// parseVariable parses the body of a [name:format] token.
func parseVariable(body string) (VariableRef, bool) {
	name, format, ok := strings.Cut(body, ":")
	if !ok || !isIdent(name) || !isIdent(format) {
		return VariableRef{}, false
	}
	return VariableRef{Name: name, Format: Format(format)}, true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
