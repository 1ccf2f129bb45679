// Package pattern implements the two address-pattern matching modes used
// by the policy gate: a flat CSV token list and a tokenised wildcard
// trie, both with "${user}" substitution support.
package pattern

import "strings"

// UserSubstitute returns proposed with the first occurrence of user
// replaced by the literal "${user}", and true if a substitution was
// made. It returns ("", false) if user is empty or does not occur in
// proposed — mirroring _qd_policy_link_user_name_subst, which refuses
// to substitute an empty username and returns NULL when there is no
// match.
func UserSubstitute(user, proposed string) (string, bool) {
	if user == "" {
		return "", false
	}
	idx := strings.Index(proposed, user)
	if idx < 0 {
		return "", false
	}
	return proposed[:idx] + "${user}" + proposed[idx+len(user):], true
}

// MatchCSV implements the CSV admission rule: a token ending in '*' is
// a prefix, a lone '*' matches anything, else the token must match
// exactly. It is tested against both the raw proposed name and (when
// available) its ${user}-substituted variant.
func MatchCSV(user, allowed, proposed string) bool {
	if proposed == "" || allowed == "" {
		return false
	}
	subst, hasSubst := UserSubstitute(user, proposed)

	for _, tok := range strings.Split(allowed, ",") {
		if tok == "" {
			continue
		}
		if matchToken(tok, proposed) {
			return true
		}
		if hasSubst && matchToken(tok, subst) {
			return true
		}
	}
	return false
}

func matchToken(tok, proposed string) bool {
	if tok == "*" {
		return true
	}
	if strings.HasSuffix(tok, "*") {
		return strings.HasPrefix(proposed, tok[:len(tok)-1])
	}
	return tok == proposed
}

// Separator is the token delimiter used when tokenising tree-mode
// addresses, matching the mobile-address convention of dot-separated
// segments (e.g. "a.b.c").
const Separator = "."

// treeNode is one level of the wildcard trie. "*" matches exactly one
// segment; "#" matches zero or more trailing segments.
type treeNode struct {
	children map[string]*treeNode
	terminal bool
}

// Tree is a compiled longest-match address pattern trie, as used for
// PolicySettings' sourceParseTree/targetParseTree.
type Tree struct {
	root *treeNode
}

// NewTree compiles patterns (dot-separated, optionally using "*" and
// "#" wildcard segments) into a Tree.
func NewTree(patterns []string) *Tree {
	t := &Tree{root: &treeNode{children: map[string]*treeNode{}}}
	for _, p := range patterns {
		t.Add(p)
	}
	return t
}

// Add inserts one pattern into the tree.
func (t *Tree) Add(pattern string) {
	if pattern == "" {
		return
	}
	n := t.root
	for _, seg := range strings.Split(pattern, Separator) {
		child, ok := n.children[seg]
		if !ok {
			child = &treeNode{children: map[string]*treeNode{}}
			n.children[seg] = child
		}
		n = child
	}
	n.terminal = true
}

// Match reports whether name matches some compiled pattern, trying the
// name as given and — when user is non-empty and appears in name — the
// ${user}-substituted variant, mirroring
// _qd_policy_approve_link_name_tree.
func (t *Tree) Match(user, name string) bool {
	if name == "" {
		return false
	}
	if t.matchOne(name) {
		return true
	}
	if subst, ok := UserSubstitute(user, name); ok {
		return t.matchOne(subst)
	}
	return false
}

func (t *Tree) matchOne(name string) bool {
	segs := strings.Split(name, Separator)
	return matchSegs(t.root, segs)
}

func matchSegs(n *treeNode, segs []string) bool {
	if len(segs) == 0 {
		return n.terminal || hashMatchesEmpty(n)
	}
	if child, ok := n.children[segs[0]]; ok {
		if matchSegs(child, segs[1:]) {
			return true
		}
	}
	if child, ok := n.children["*"]; ok {
		if matchSegs(child, segs[1:]) {
			return true
		}
	}
	if child, ok := n.children["#"]; ok {
		// "#" consumes zero or more remaining segments.
		if child.terminal {
			return true
		}
		for i := 0; i <= len(segs); i++ {
			if matchSegs(child, segs[i:]) {
				return true
			}
		}
	}
	return false
}

func hashMatchesEmpty(n *treeNode) bool {
	child, ok := n.children["#"]
	return ok && child.terminal
}
