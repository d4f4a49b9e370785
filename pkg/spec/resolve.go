package spec

import (
	"net/url"
	"strconv"
	"strings"
)

// maxRefHops bounds how many intermediate references a single pointer
// lookup may follow.
const maxRefHops = 64

// Resolve returns a copy of root with internal references ("#/a/b") replaced
// by the subtree they point at, resolved relative to root.
//
// References are left in place when their target does not exist, when they
// are external (not starting with '#'), or when they take part in a cycle.
// Every resolution path also carries the set of references it has already
// expanded and never expands one twice. The result never contains a
// resolvable reference, so Resolve(Resolve(d)) is equal to Resolve(d).
func Resolve(root *Node) *Node {
	if root == nil {
		return nil
	}
	r := &resolver{
		root:   root,
		memo:   map[string]*Node{},
		cyclic: map[string]bool{},
	}
	r.markCycles()
	return r.resolve(root, nil)
}

type resolver struct {
	root   *Node
	memo   map[string]*Node
	cyclic map[string]bool
}

func (r *resolver) resolve(n *Node, visited []string) *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindRef:
		ref := n.Ref()
		if !isInternal(ref) || r.cyclic[ref] || contains(visited, ref) {
			return n
		}
		if done, ok := r.memo[ref]; ok {
			return done
		}
		target, _, ok := r.lookup(ref)
		if !ok {
			return n
		}
		out := r.resolve(target, append(visited, ref))
		r.memo[ref] = out
		return out
	case KindObject:
		out := &Node{Kind: KindObject, Keys: append([]string(nil), n.Keys...), Fields: make(map[string]*Node, len(n.Fields))}
		for _, k := range n.Keys {
			out.Fields[k] = r.resolve(n.Fields[k], visited)
		}
		return out
	case KindArray:
		out := &Node{Kind: KindArray, Items: make([]*Node, len(n.Items))}
		for i, it := range n.Items {
			out.Items[i] = r.resolve(it, visited)
		}
		return out
	default:
		return n
	}
}

// markCycles flags every internal reference that can reach itself through
// the references inside its target.
func (r *resolver) markCycles() {
	edges := map[string][]string{}
	pending := collectRefs(r.root, nil)
	for len(pending) > 0 {
		ref := pending[0]
		pending = pending[1:]
		if _, seen := edges[ref]; seen {
			continue
		}
		target, via, ok := r.lookup(ref)
		if !ok {
			edges[ref] = nil
			continue
		}
		deps := collectRefs(target, via)
		edges[ref] = deps
		pending = append(pending, deps...)
	}

	for ref := range edges {
		if reaches(edges, ref, ref) {
			r.cyclic[ref] = true
		}
	}
}

func reaches(edges map[string][]string, from, to string) bool {
	seen := map[string]bool{}
	stack := append([]string(nil), edges[from]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, edges[cur]...)
	}
	return false
}

func collectRefs(n *Node, acc []string) []string {
	if n == nil {
		return acc
	}
	switch n.Kind {
	case KindRef:
		if ref := n.Ref(); isInternal(ref) {
			acc = append(acc, ref)
		}
	case KindObject:
		for _, k := range n.Keys {
			acc = collectRefs(n.Fields[k], acc)
		}
	case KindArray:
		for _, it := range n.Items {
			acc = collectRefs(it, acc)
		}
	}
	return acc
}

// lookup follows a JSON pointer from the document root. A reference met
// along the way is followed when the next token is not one of its own
// members; the references followed are returned in via.
func (r *resolver) lookup(ref string) (*Node, []string, bool) {
	return Lookup(r.root, ref)
}

// Lookup evaluates a "#/a/b" pointer against root.
func Lookup(root *Node, ref string) (*Node, []string, bool) {
	if root == nil {
		return nil, nil, false
	}
	return lookup(root, ref, nil)
}

func lookup(root *Node, ref string, active []string) (*Node, []string, bool) {
	tokens, ok := pointerTokens(ref)
	if !ok || len(active) > maxRefHops {
		return nil, nil, false
	}
	active = append(active, ref)

	var via []string
	cur := root
	for _, tok := range tokens {
		for cur.Kind == KindRef && cur.Fields[tok] == nil {
			next := cur.Ref()
			if !isInternal(next) || contains(active, next) {
				return nil, nil, false
			}
			target, more, found := lookup(root, next, active)
			if !found {
				return nil, nil, false
			}
			via = append(via, next)
			via = append(via, more...)
			active = append(active, next)
			cur = target
		}

		switch cur.Kind {
		case KindObject, KindRef:
			child, exists := cur.Fields[tok]
			if !exists {
				return nil, nil, false
			}
			cur = child
		case KindArray:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(cur.Items) {
				return nil, nil, false
			}
			cur = cur.Items[idx]
		default:
			return nil, nil, false
		}
	}
	return cur, via, true
}

func pointerTokens(ref string) ([]string, bool) {
	if !isInternal(ref) {
		return nil, false
	}
	frag := strings.TrimPrefix(ref, "#")
	if unescaped, err := url.PathUnescape(frag); err == nil {
		frag = unescaped
	}
	if frag == "" {
		return nil, true
	}
	if !strings.HasPrefix(frag, "/") {
		return nil, false
	}
	parts := strings.Split(frag[1:], "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return parts, true
}

func isInternal(ref string) bool {
	return strings.HasPrefix(ref, "#")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
