// Package digest implements the RFC 1321 MD5 message digest used for
// the per-entry integrity trailer. The archive format fixes the
// trailer to MD5, so the primitive lives in-repo and is pinned by the
// standard test vectors.
//
// MD5 is not collision resistant; the archive uses it only to detect
// accidental corruption, never as a security boundary.
package digest

import "encoding/binary"

// Size is the length of an MD5 digest in bytes.
const Size = 16

// BlockSize is the MD5 block size in bytes.
const BlockSize = 64

const (
	init0 = 0x67452301
	init1 = 0xEFCDAB89
	init2 = 0x98BADCFE
	init3 = 0x10325476
)

// MD5 is an incremental MD5 context. The zero value is not usable;
// call New.
type MD5 struct {
	s   [4]uint32
	x   [BlockSize]byte
	nx  int
	len uint64
}

// New returns a fresh MD5 context.
func New() *MD5 {
	d := &MD5{}
	d.Reset()
	return d
}

// Reset returns the context to its initial state.
func (d *MD5) Reset() {
	d.s = [4]uint32{init0, init1, init2, init3}
	d.nx = 0
	d.len = 0
}

// Update absorbs p into the digest state. It may be called any number
// of times before Finalize.
func (d *MD5) Update(p []byte) {
	d.len += uint64(len(p))
	if d.nx > 0 {
		n := copy(d.x[d.nx:], p)
		d.nx += n
		if d.nx == BlockSize {
			block(d, d.x[:])
			d.nx = 0
		}
		p = p[n:]
	}
	if len(p) >= BlockSize {
		n := len(p) &^ (BlockSize - 1)
		block(d, p[:n])
		p = p[n:]
	}
	if len(p) > 0 {
		d.nx = copy(d.x[:], p)
	}
}

// Finalize appends the standard 0x80 / zero / bit-length padding and
// returns the 16-byte digest. The context is consumed: further Update
// calls are not supported without Reset.
func (d *MD5) Finalize() [Size]byte {
	// Padding: one 0x80 byte, zeros to 56 mod 64, then the message
	// length in bits as a little-endian 64-bit integer.
	var tmp [1 + 63 + 8]byte
	tmp[0] = 0x80
	pad := (55 - d.len) % 64
	binary.LittleEndian.PutUint64(tmp[1+pad:], d.len<<3)
	d.Update(tmp[:1+pad+8])

	var out [Size]byte
	binary.LittleEndian.PutUint32(out[0:], d.s[0])
	binary.LittleEndian.PutUint32(out[4:], d.s[1])
	binary.LittleEndian.PutUint32(out[8:], d.s[2])
	binary.LittleEndian.PutUint32(out[12:], d.s[3])
	return out
}

// Sum is a convenience one-shot digest of data.
func Sum(data []byte) [Size]byte {
	d := New()
	d.Update(data)
	return d.Finalize()
}

// shift amounts per round, S[0..63] in RFC 1321 order.
var shift = [64]uint{
	7, 12, 17, 22, 7, 12, 17, 22, 7, 12, 17, 22, 7, 12, 17, 22,
	5, 9, 14, 20, 5, 9, 14, 20, 5, 9, 14, 20, 5, 9, 14, 20,
	4, 11, 16, 23, 4, 11, 16, 23, 4, 11, 16, 23, 4, 11, 16, 23,
	6, 10, 15, 21, 6, 10, 15, 21, 6, 10, 15, 21, 6, 10, 15, 21,
}

// sine-derived round constants, K[i] = floor(2^32 * |sin(i+1)|).
var sine = [64]uint32{
	0xd76aa478, 0xe8c7b756, 0x242070db, 0xc1bdceee,
	0xf57c0faf, 0x4787c62a, 0xa8304613, 0xfd469501,
	0x698098d8, 0x8b44f7af, 0xffff5bb1, 0x895cd7be,
	0x6b901122, 0xfd987193, 0xa679438e, 0x49b40821,
	0xf61e2562, 0xc040b340, 0x265e5a51, 0xe9b6c7aa,
	0xd62f105d, 0x02441453, 0xd8a1e681, 0xe7d3fbc8,
	0x21e1cde6, 0xc33707d6, 0xf4d50d87, 0x455a14ed,
	0xa9e3e905, 0xfcefa3f8, 0x676f02d9, 0x8d2a4c8a,
	0xfffa3942, 0x8771f681, 0x6d9d6122, 0xfde5380c,
	0xa4beea44, 0x4bdecfa9, 0xf6bb4b60, 0xbebfbc70,
	0x289b7ec6, 0xeaa127fa, 0xd4ef3085, 0x04881d05,
	0xd9d4d039, 0xe6db99e5, 0x1fa27cf8, 0xc4ac5665,
	0xf4292244, 0x432aff97, 0xab9423a7, 0xfc93a039,
	0x655b59c3, 0x8f0ccc92, 0xffeff47d, 0x85845dd1,
	0x6fa87e4f, 0xfe2ce6e0, 0xa3014314, 0x4e0811a1,
	0xf7537e82, 0xbd3af235, 0x2ad7d2bb, 0xeb86d391,
}

func block(d *MD5, p []byte) {
	a, b, c, dd := d.s[0], d.s[1], d.s[2], d.s[3]

	var m [16]uint32
	for len(p) >= BlockSize {
		for i := 0; i < 16; i++ {
			m[i] = binary.LittleEndian.Uint32(p[i*4:])
		}

		aa, bb, cc, ddd := a, b, c, dd
		for i := 0; i < 64; i++ {
			var f uint32
			var g int
			switch {
			case i < 16:
				f = (b & c) | (^b & dd)
				g = i
			case i < 32:
				f = (dd & b) | (^dd & c)
				g = (5*i + 1) % 16
			case i < 48:
				f = b ^ c ^ dd
				g = (3*i + 5) % 16
			default:
				f = c ^ (b | ^dd)
				g = (7 * i) % 16
			}
			sum := a + f + sine[i] + m[g]
			a, dd, c = dd, c, b
			b += rotl(sum, shift[i])
		}

		a += aa
		b += bb
		c += cc
		dd += ddd

		p = p[BlockSize:]
	}

	d.s[0], d.s[1], d.s[2], d.s[3] = a, b, c, dd
}

func rotl(x uint32, n uint) uint32 {
	return x<<n | x>>(32-n)
}
