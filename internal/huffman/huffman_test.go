package huffman

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/huffarc/internal/bitio"
	"github.com/scigolib/huffarc/internal/format"
)

func buildFrom(t *testing.T, data []byte) *Model {
	t.Helper()
	m := New(format.CodecBinary)
	m.AddBytes(data)
	require.NoError(t, m.Build())
	return m
}

func TestBuild_SimpleInput(t *testing.T) {
	m := buildFrom(t, []byte("aaabbc"))
	codes, err := m.Codes()
	require.NoError(t, err)

	// a is the most frequent symbol and gets the shortest code.
	require.Len(t, codes, 3)
	require.Equal(t, 1, codes['a'].Len())
	require.Equal(t, 2, codes['b'].Len())
	require.Equal(t, 2, codes['c'].Len())
}

func TestBuild_SingleSymbolIsOneLeaf(t *testing.T) {
	m := buildFrom(t, []byte("aaaa"))
	codes, err := m.Codes()
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, "1", codes['a'].Format())
}

func TestBuild_EmptyTableFails(t *testing.T) {
	m := New(format.CodecBinary)
	require.Error(t, m.Build())
}

func TestBuild_TieBreakIsFirstSeenOrder(t *testing.T) {
	// All symbols equally frequent: repeated builds over the same
	// input must give identical code tables.
	input := []byte("zyxw")
	first, err := buildFrom(t, input).Codes()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := buildFrom(t, input).Codes()
		require.NoError(t, err)
		for sym, code := range first {
			require.Equal(t, code.Format(), again[sym].Format(), "symbol %q", sym)
		}
	}
}

func TestBuild_CodeLengthsStableAcrossRebuilds(t *testing.T) {
	input := []byte("abracadabra, a cadaver in an abbey")
	want, err := buildFrom(t, input).Codes()
	require.NoError(t, err)
	got, err := buildFrom(t, input).Codes()
	require.NoError(t, err)
	for sym, code := range want {
		require.Equal(t, code.Len(), got[sym].Len(), "symbol %q", sym)
	}
}

func encode(t *testing.T, m *Model, data []byte) *bitio.String {
	t.Helper()
	codes, err := m.Codes()
	require.NoError(t, err)
	bits := &bitio.String{}
	for _, b := range data {
		bits.Append(codes[rune(b)])
	}
	return bits
}

func TestDecode_RoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	m := buildFrom(t, data)
	bits := encode(t, m, data)

	syms, rest, err := m.Decode(bits, 0)
	require.NoError(t, err)
	require.Equal(t, 0, rest.Len())
	require.Equal(t, data, runesToBytes(syms))
}

func TestDecode_DropsPaddingBits(t *testing.T) {
	data := []byte("aaabbc")
	m := buildFrom(t, data)
	bits := encode(t, m, data)

	// Pad to a byte boundary the way the packer would.
	pad := (8 - bits.Len()%8) % 8
	for i := 0; i < pad; i++ {
		bits.AppendBit(0)
	}
	syms, _, err := m.Decode(bits, pad)
	require.NoError(t, err)
	require.Equal(t, data, runesToBytes(syms))
}

func TestDecode_ChunkedWithResidual(t *testing.T) {
	data := []byte("mississippi river delta")
	m := buildFrom(t, data)
	all := encode(t, m, data)

	// Feed in ragged chunks; a negative count returns the bits of
	// any code left in progress for the next round.
	var decoded []rune
	carry := &bitio.String{}
	for off := 0; off < all.Len(); off += 13 {
		end := off + 13
		if end > all.Len() {
			end = all.Len()
		}
		chunk := carry
		chunk.Append(all.Slice(off, end))
		var syms []rune
		var err error
		syms, carry, err = m.Decode(chunk, -1)
		require.NoError(t, err)
		decoded = append(decoded, syms...)
	}
	require.Equal(t, 0, carry.Len())
	require.Equal(t, data, runesToBytes(decoded))
}

func TestDecode_SingleLeafPayload(t *testing.T) {
	m := buildFrom(t, []byte("aaaa"))
	// 0xF0 with 4 padding bits dropped leaves four 1-bits.
	bits := &bitio.String{}
	bits.AppendBytes([]byte{0xF0})
	syms, _, err := m.Decode(bits, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaa"), runesToBytes(syms))
}

func TestDecode_PadCountBeyondBufferFails(t *testing.T) {
	m := buildFrom(t, []byte("ab"))
	bits := bitio.Parse("1")
	_, _, err := m.Decode(bits, 5)
	require.Error(t, err)
}

func TestSerialize_RoundTrip(t *testing.T) {
	m := buildFrom(t, []byte("serialize me, twice over"))
	blob, err := m.Serialize()
	require.NoError(t, err)
	require.Equal(t, uint8(format.CodecBinary), blob[0])

	back, err := Deserialize(blob)
	require.NoError(t, err)
	require.Equal(t, format.CodecBinary, back.Codec())

	want, err := m.Codes()
	require.NoError(t, err)
	got, err := back.Codes()
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for sym, code := range want {
		require.Equal(t, code.Format(), got[sym].Format(), "symbol %q", sym)
	}
}

func TestSerialize_SingleLeaf(t *testing.T) {
	m := buildFrom(t, []byte("aaaa"))
	blob, err := m.Serialize()
	require.NoError(t, err)

	back, err := Deserialize(blob)
	require.NoError(t, err)
	codes, err := back.Codes()
	require.NoError(t, err)
	require.Equal(t, "1", codes['a'].Format())
}

func TestSerialize_UTF8Symbols(t *testing.T) {
	m := New(format.CodecUTF8)
	m.AddRunes([]rune("дерево ёлка"))
	require.NoError(t, m.Build())

	blob, err := m.Serialize()
	require.NoError(t, err)
	back, err := Deserialize(blob)
	require.NoError(t, err)
	require.Equal(t, format.CodecUTF8, back.Codec())

	want, err := m.Codes()
	require.NoError(t, err)
	got, err := back.Codes()
	require.NoError(t, err)
	for sym, code := range want {
		require.Equal(t, code.Format(), got[sym].Format(), "symbol %q", sym)
	}
}

func TestDeserialize_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":          nil,
		"bad codec":      {9, 0x01, 'a'},
		"bad marker":     {0, 0x07},
		"truncated":      {0, 0x00, 0x01, 'a'},
		"trailing bytes": {0, 0x01, 'a', 'z'},
	}
	for name, blob := range cases {
		_, err := Deserialize(blob)
		require.Error(t, err, name)
	}
}

func runesToBytes(syms []rune) []byte {
	out := make([]byte, 0, len(syms))
	for _, r := range syms {
		out = append(out, byte(r))
	}
	return out
}
