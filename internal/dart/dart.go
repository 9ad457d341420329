// Package dart implements a double-array trie over ASCII letters for
// case-insensitive keyword matching at the head of a byte slice.
package dart

import (
	"fmt"
)

type node struct {
	base int
	// parent index + 1; zero marks a free slot
	check int
	// key index + 1 on terminal nodes
	value int
}

type PrefixMatcher struct {
	nodes []node
	keys  []string
}

const sentinelCode = 26

const alphabetSize = sentinelCode + 1

type trie struct {
	next [alphabetSize]*trie
	key  int
}

func Build(keys []string) (*PrefixMatcher, error) {
	root, err := buildTrie(keys)
	if err != nil {
		return nil, err
	}

	m := &PrefixMatcher{
		nodes: make([]node, 256),
		keys:  keys,
	}
	m.nodes[0] = node{base: 1}
	m.place(root, 0)

	return m, nil
}

func Must(pm *PrefixMatcher, err error) *PrefixMatcher {
	if err != nil {
		panic(err)
	}
	return pm
}

func (m *PrefixMatcher) place(t *trie, id int) {
	base := m.findBase(t)
	m.nodes[id].base = base

	// reserve every child slot before descending so siblings are not reused
	for c, n := range t.next {
		if n == nil {
			continue
		}
		m.nodes[base+c].check = id + 1
	}
	for c, n := range t.next {
		if n == nil {
			continue
		}
		if c == sentinelCode {
			m.nodes[base+c].value = n.key
			continue
		}
		m.place(n, base+c)
	}
}

func (m *PrefixMatcher) findBase(t *trie) int {
	for base := 1; ; base++ {
		m.grow(base + alphabetSize)
		ok := true
		for c, n := range t.next {
			if n != nil && m.nodes[base+c].check != 0 {
				ok = false
				break
			}
		}
		if ok {
			return base
		}
	}
}

func (m *PrefixMatcher) grow(size int) {
	for len(m.nodes) < size {
		m.nodes = append(m.nodes, make([]node, len(m.nodes))...)
	}
}

func (m *PrefixMatcher) child(n, c int) (int, bool) {
	i := m.nodes[n].base + c
	if i >= len(m.nodes) || m.nodes[i].check != n+1 {
		return 0, false
	}
	return i, true
}

// Match reports whether b starts with one of the keys.
func (m *PrefixMatcher) Match(b []byte) bool {
	n := 0
	for _, x := range b {
		if _, ok := m.child(n, sentinelCode); ok {
			return true
		}
		c := toCode(x)
		if c < 0 {
			return false
		}
		next, ok := m.child(n, c)
		if !ok {
			return false
		}
		n = next
	}
	_, ok := m.child(n, sentinelCode)
	return ok
}

// Lookup returns the key equal to the leading run of letters in b.
// "select 1" finds "SELECT"; "selection" does not.
func (m *PrefixMatcher) Lookup(b []byte) (string, bool) {
	n := 0
	for _, x := range b {
		c := toCode(x)
		if c < 0 {
			break
		}
		next, ok := m.child(n, c)
		if !ok {
			return "", false
		}
		n = next
	}
	if n == 0 {
		return "", false
	}
	t, ok := m.child(n, sentinelCode)
	if !ok {
		return "", false
	}
	return m.keys[m.nodes[t].value-1], true
}

func toCode(b byte) int {
	if 'A' <= b && b <= 'Z' {
		return int(b - 'A')
	}
	if 'a' <= b && b <= 'z' {
		return int(b - 'a')
	}
	return -1
}

func buildTrie(keys []string) (*trie, error) {
	root := &trie{}

	for i, key := range keys {
		if key == "" {
			return nil, fmt.Errorf("key #%d is empty", i)
		}
		t := root
		for _, b := range []byte(key) {
			c := toCode(b)
			if c < 0 {
				return nil, fmt.Errorf("key(%q) contains unknown", key)
			}
			if t.next[c] == nil {
				t.next[c] = &trie{}
			}
			t = t.next[c]
		}
		if t.next[sentinelCode] == nil {
			t.next[sentinelCode] = &trie{key: i + 1}
		}
	}
	return root, nil
}
