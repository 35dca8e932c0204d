package merge

import (
	"slices"

	"github.com/kokistudios/specledger/internal/requirement"
)

// orderedMap keys requirement blocks by normalized name and remembers the
// slot each key occupies. Replacing or renaming keeps the slot; new keys
// are appended.
type orderedMap struct {
	keys   []requirement.Name
	blocks map[requirement.Name]requirement.Block
}

func newOrderedMap(blocks []requirement.Block) (*orderedMap, []string) {
	m := &orderedMap{blocks: make(map[requirement.Name]requirement.Block, len(blocks))}
	var dups []string
	for _, b := range blocks {
		if _, ok := m.blocks[b.Key()]; ok {
			dups = append(dups, b.Name)
			continue
		}
		m.set(b.Key(), b)
	}
	return m, dups
}

func (m *orderedMap) get(key requirement.Name) (requirement.Block, bool) {
	b, ok := m.blocks[key]
	return b, ok
}

func (m *orderedMap) has(key requirement.Name) bool {
	_, ok := m.blocks[key]
	return ok
}

func (m *orderedMap) set(key requirement.Name, b requirement.Block) {
	if _, ok := m.blocks[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.blocks[key] = b
}

func (m *orderedMap) delete(key requirement.Name) {
	if _, ok := m.blocks[key]; !ok {
		return
	}
	delete(m.blocks, key)
	if i := slices.Index(m.keys, key); i >= 0 {
		m.keys = slices.Delete(m.keys, i, i+1)
	}
}

// rename moves the entry at from to to in place.
func (m *orderedMap) rename(from, to requirement.Name, b requirement.Block) {
	i := slices.Index(m.keys, from)
	if i < 0 {
		m.set(to, b)
		return
	}
	delete(m.blocks, from)
	m.keys[i] = to
	m.blocks[to] = b
}

func (m *orderedMap) values() []requirement.Block {
	out := make([]requirement.Block, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.blocks[k])
	}
	return out
}
