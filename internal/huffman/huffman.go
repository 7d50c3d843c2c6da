// Package huffman implements the order-0 Huffman model used by the
// archive codec: frequency accumulation, tree construction, code
// table generation, bit-stream decoding, and the serialized tree
// form embedded in each archive entry.
//
// Symbols are Unicode scalar values. In binary mode every byte value
// 0-255 is its own symbol; in UTF-8 mode symbols are code points.
package huffman

import (
	"container/heap"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/scigolib/huffarc/internal/bitio"
	"github.com/scigolib/huffarc/internal/format"
)

// node is a tree node. Leaves carry a symbol; internal nodes carry
// only their two children, labeled 0 (left) and 1 (right).
type node struct {
	sym   rune
	leaf  bool
	left  *node
	right *node
}

// Model is a Huffman model: the frequency table before Build, the
// code tree after. A Model serves exactly one archive entry.
type Model struct {
	codec format.Codec
	freq  map[rune]uint64
	order []rune // symbols in first-seen order, for deterministic ties
	root  *node
}

// New returns an empty model for the given codec.
func New(codec format.Codec) *Model {
	return &Model{
		codec: codec,
		freq:  make(map[rune]uint64),
	}
}

// Codec returns the codec the model was built for.
func (m *Model) Codec() format.Codec { return m.codec }

// AddBytes accumulates frequencies for a block of raw bytes, one
// symbol per byte.
func (m *Model) AddBytes(p []byte) {
	for _, b := range p {
		m.add(rune(b))
	}
}

// AddRunes accumulates frequencies for decoded Unicode scalars.
func (m *Model) AddRunes(rs []rune) {
	for _, r := range rs {
		m.add(r)
	}
}

func (m *Model) add(r rune) {
	if _, seen := m.freq[r]; !seen {
		m.order = append(m.order, r)
	}
	m.freq[r]++
}

// queueItem pairs a node with its build priority: frequency first,
// then insertion sequence so equal frequencies pop FIFO.
type queueItem struct {
	n    *node
	freq uint64
	seq  int
}

type buildQueue []*queueItem

func (q buildQueue) Len() int { return len(q) }
func (q buildQueue) Less(i, j int) bool {
	if q[i].freq != q[j].freq {
		return q[i].freq < q[j].freq
	}
	return q[i].seq < q[j].seq
}
func (q buildQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *buildQueue) Push(x any)   { *q = append(*q, x.(*queueItem)) }
func (q *buildQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Build constructs the code tree from the accumulated frequencies.
// A table with a single distinct symbol yields a single-leaf tree.
func (m *Model) Build() error {
	switch len(m.order) {
	case 0:
		return errors.New("huffman: empty frequency table")
	case 1:
		m.root = &node{sym: m.order[0], leaf: true}
		return nil
	}

	q := make(buildQueue, 0, len(m.order))
	seq := 0
	for _, sym := range m.order {
		q = append(q, &queueItem{
			n:    &node{sym: sym, leaf: true},
			freq: m.freq[sym],
			seq:  seq,
		})
		seq++
	}
	heap.Init(&q)

	for q.Len() > 1 {
		left := heap.Pop(&q).(*queueItem)
		right := heap.Pop(&q).(*queueItem)
		heap.Push(&q, &queueItem{
			n:    &node{left: left.n, right: right.n},
			freq: left.freq + right.freq,
			seq:  seq,
		})
		seq++
	}
	m.root = q[0].n
	return nil
}

// Codes returns the code table. The sole code of a single-leaf tree
// is the single bit "1"; otherwise codes are prefix-free, with "0" on
// left descent and "1" on right descent.
func (m *Model) Codes() (map[rune]*bitio.String, error) {
	if m.root == nil {
		return nil, errors.New("huffman: tree not built")
	}
	codes := make(map[rune]*bitio.String)
	if m.root.leaf {
		codes[m.root.sym] = bitio.Parse("1")
		return codes, nil
	}
	var walk func(n *node, prefix *bitio.String)
	walk = func(n *node, prefix *bitio.String) {
		if n.leaf {
			codes[n.sym] = prefix
			return
		}
		left := prefix.Clone()
		left.AppendBit(0)
		right := prefix.Clone()
		right.AppendBit(1)
		walk(n.left, left)
		walk(n.right, right)
	}
	walk(m.root, &bitio.String{})
	return codes, nil
}

// Decode walks the tree over bits and returns the decoded symbols
// plus the residual bits of any code left in progress.
//
// count >= 0 means bits is the final chunk of a payload whose
// metadata byte has already been stripped; the trailing count bits
// are padding and are dropped before decoding. count < 0 means more
// chunks follow: decode as far as possible and return the unconsumed
// tail for the caller to prepend to the next chunk.
func (m *Model) Decode(bits *bitio.String, count int) ([]rune, *bitio.String, error) {
	if m.root == nil {
		return nil, nil, errors.New("huffman: tree not built")
	}
	if count >= 1 {
		if count > bits.Len() {
			return nil, nil, fmt.Errorf("huffman: pad count %d exceeds %d buffered bits", count, bits.Len())
		}
		bits.Truncate(bits.Len() - count)
	}

	var out []rune

	// Degenerate single-leaf tree: every bit of the payload stands
	// for the one symbol.
	if m.root.leaf {
		for i := 0; i < bits.Len(); i++ {
			out = append(out, m.root.sym)
		}
		return out, &bitio.String{}, nil
	}

	cur := m.root
	done := 0 // bits consumed through the last completed symbol
	for i := 0; i < bits.Len(); i++ {
		if bits.Bit(i) == 0 {
			cur = cur.left
		} else {
			cur = cur.right
		}
		if cur == nil {
			return nil, nil, errors.New("huffman: invalid code in bit stream")
		}
		if cur.leaf {
			out = append(out, cur.sym)
			cur = m.root
			done = i + 1
		}
	}
	return out, bits.Slice(done, bits.Len()), nil
}

// Tree wire format, embedded in each non-empty file entry:
//
//	Byte 0: codec flag (0 = binary, 1 = UTF-8)
//	Then a pre-order walk: 0x00 for an internal node followed by its
//	left and right subtrees; 0x01 for a leaf followed by the symbol
//	as an unsigned varint code point.
//
// The walk is deterministic, so serialize/deserialize round-trips to
// an identical tree. Changing this layout is an archive version bump.
const (
	markInternal = 0x00
	markLeaf     = 0x01
)

// Serialize renders the built tree to its wire form.
func (m *Model) Serialize() ([]byte, error) {
	if m.root == nil {
		return nil, errors.New("huffman: tree not built")
	}
	out := []byte{uint8(m.codec)}
	var walk func(n *node)
	walk = func(n *node) {
		if n.leaf {
			out = append(out, markLeaf)
			out = binary.AppendUvarint(out, uint64(n.sym))
			return
		}
		out = append(out, markInternal)
		walk(n.left)
		walk(n.right)
	}
	walk(m.root)
	return out, nil
}

// Deserialize rebuilds a model from its wire form.
func Deserialize(data []byte) (*Model, error) {
	if len(data) < 2 {
		return nil, errors.New("huffman: serialized tree too short")
	}
	codec := format.Codec(data[0])
	if !codec.Valid() {
		return nil, fmt.Errorf("huffman: bad codec flag %d in serialized tree", data[0])
	}

	pos := 1
	var parse func() (*node, error)
	parse = func() (*node, error) {
		if pos >= len(data) {
			return nil, errors.New("huffman: truncated serialized tree")
		}
		mark := data[pos]
		pos++
		switch mark {
		case markLeaf:
			sym, n := binary.Uvarint(data[pos:])
			if n <= 0 {
				return nil, errors.New("huffman: bad symbol varint in serialized tree")
			}
			pos += n
			return &node{sym: rune(sym), leaf: true}, nil
		case markInternal:
			left, err := parse()
			if err != nil {
				return nil, err
			}
			right, err := parse()
			if err != nil {
				return nil, err
			}
			return &node{left: left, right: right}, nil
		default:
			return nil, fmt.Errorf("huffman: bad node marker 0x%02x in serialized tree", mark)
		}
	}

	root, err := parse()
	if err != nil {
		return nil, err
	}
	if pos != len(data) {
		return nil, fmt.Errorf("huffman: %d trailing bytes after serialized tree", len(data)-pos)
	}
	return &Model{codec: codec, root: root}, nil
}
