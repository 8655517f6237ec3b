package prompts

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Template syntax:
//
//	{{path.to.value}}                      dot lookup, missing → ""
//	{{#if path}} ... {{else}} ... {{/if}}  truthy: non-empty string/array/object, true, non-zero number
//	{{#each path}} ... {{this}} ... {{/each}}
//	{{join path ", "}}
//
// Inside an each body, "this" is the current item and "this.field" reads
// from it; other paths resolve against the enclosing context.

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeVar
	nodeIf
	nodeEach
	nodeJoin
)

type node struct {
	kind     nodeKind
	text     string // literal text, or path for var/if/each/join
	sep      string // join separator
	children []node // if-then / each body
	alt      []node // if-else
}

// Render substitutes data into tmpl. data is usually the result of ToContext.
func Render(tmpl string, data map[string]any) string {
	nodes, _ := parse(tmpl, 0, "")
	var sb strings.Builder
	renderNodes(&sb, nodes, scope{vars: data})
	return sb.String()
}

type scope struct {
	vars   map[string]any
	this   any
	inEach bool
	parent *scope
}

func (s scope) lookup(path string) any {
	if path == "this" {
		if s.inEach {
			return s.this
		}
		return nil
	}
	if rest, ok := strings.CutPrefix(path, "this."); ok && s.inEach {
		return dig(s.this, rest)
	}
	if v := dig(s.vars, path); v != nil {
		return v
	}
	if s.parent != nil {
		return s.parent.lookup(path)
	}
	return nil
}

func dig(root any, path string) any {
	cur := root
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// parse consumes tokens until the closing tag named by until ("if", "each")
// or end of input. It returns the parsed nodes and the remaining offset.
func parse(src string, pos int, until string) ([]node, int) {
	var out []node
	for pos < len(src) {
		open := strings.Index(src[pos:], "{{")
		if open < 0 {
			out = append(out, node{kind: nodeText, text: src[pos:]})
			return out, len(src)
		}
		if open > 0 {
			out = append(out, node{kind: nodeText, text: src[pos : pos+open]})
		}
		start := pos + open
		closeIdx := strings.Index(src[start:], "}}")
		if closeIdx < 0 {
			out = append(out, node{kind: nodeText, text: src[start:]})
			return out, len(src)
		}
		tag := strings.TrimSpace(src[start+2 : start+closeIdx])
		pos = start + closeIdx + 2

		switch {
		case tag == "/if" || tag == "/each":
			if tag[1:] == until {
				return out, pos
			}
			// Stray closer: keep it visible rather than silently dropping text.
			out = append(out, node{kind: nodeText, text: "{{" + tag + "}}"})
		case tag == "else" && until == "if":
			// Signal the caller by returning with an else marker.
			out = append(out, node{kind: nodeText, text: elseMarker})
		case tag == "else":
			// Only #if takes an else branch.
			out = append(out, node{kind: nodeText, text: "{{else}}"})
		case strings.HasPrefix(tag, "#if "):
			body, next := parse(src, pos, "if")
			then, alt := splitElse(body)
			out = append(out, node{kind: nodeIf, text: strings.TrimSpace(tag[4:]), children: then, alt: alt})
			pos = next
		case strings.HasPrefix(tag, "#each "):
			body, next := parse(src, pos, "each")
			out = append(out, node{kind: nodeEach, text: strings.TrimSpace(tag[6:]), children: body})
			pos = next
		case strings.HasPrefix(tag, "join "):
			path, sep := parseJoinArgs(tag[5:])
			out = append(out, node{kind: nodeJoin, text: path, sep: sep})
		default:
			out = append(out, node{kind: nodeVar, text: tag})
		}
	}
	return out, pos
}

const elseMarker = "\x00else\x00"

func splitElse(body []node) (then, alt []node) {
	for i, n := range body {
		if n.kind == nodeText && n.text == elseMarker {
			return body[:i], body[i+1:]
		}
	}
	return body, nil
}

func parseJoinArgs(args string) (path, sep string) {
	args = strings.TrimSpace(args)
	sp := strings.IndexAny(args, " \t")
	if sp < 0 {
		return args, ", "
	}
	path = args[:sp]
	rest := strings.TrimSpace(args[sp:])
	if len(rest) >= 2 && (rest[0] == '"' || rest[0] == '\'') && rest[len(rest)-1] == rest[0] {
		rest = rest[1 : len(rest)-1]
	}
	return path, strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(rest)
}

func renderNodes(sb *strings.Builder, nodes []node, sc scope) {
	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			sb.WriteString(n.text)
		case nodeVar:
			sb.WriteString(stringify(sc.lookup(n.text)))
		case nodeIf:
			if truthy(sc.lookup(n.text)) {
				renderNodes(sb, n.children, sc)
			} else {
				renderNodes(sb, n.alt, sc)
			}
		case nodeEach:
			items, _ := sc.lookup(n.text).([]any)
			for _, item := range items {
				parent := sc
				renderNodes(sb, n.children, scope{this: item, inEach: true, parent: &parent})
			}
		case nodeJoin:
			items, _ := sc.lookup(n.text).([]any)
			parts := make([]string, 0, len(items))
			for _, item := range items {
				parts = append(parts, stringify(item))
			}
			sb.WriteString(strings.Join(parts, n.sep))
		}
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ToContext converts any JSON-marshallable value into the generic map form
// the renderer walks. Non-object values are wrapped under "value".
func ToContext(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return normalize(m).(map[string]any)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	if m, ok := out.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": out}
}

// normalize round-trips nested Go values (structs, typed slices) inside a
// map through JSON so the renderer only sees map[string]any / []any.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}
