// Package xrand generates random frame data for tests.
package xrand

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Bytes returns n random bytes.
func Bytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(fmt.Sprintf("failed to generate rand bytes: %v", err))
	}
	return b
}

// String returns a valid UTF-8 string of exactly n bytes with no NULs.
func String(n int) string {
	s := strings.ToValidUTF8(string(Bytes(n)), "_")
	s = strings.ReplaceAll(s, "\x00", "_")
	if len(s) >= n {
		s = strings.ToValidUTF8(s[:n], "")
	}
	return s + strings.Repeat("=", n-len(s))
}

// Int returns a random integer in [0, max).
func Int(max int) int {
	x, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("failed to get random int: %v", err))
	}
	return int(x.Int64())
}

// MaskKey returns a random masking key.
func MaskKey() [4]byte {
	var key [4]byte
	copy(key[:], Bytes(len(key)))
	return key
}

// lengthEdges are the payload lengths around the 7, 16 and 64 bit
// length encodings.
var lengthEdges = []int{0, 1, 125, 126, 127, 65535, 65536}

// PayloadLength returns a payload length below max. Half of the time it
// is one of the length encoding boundaries that fits.
func PayloadLength(max int) int {
	if Int(2) == 0 {
		var edges []int
		for _, n := range lengthEdges {
			if n < max {
				edges = append(edges, n)
			}
		}
		return edges[Int(len(edges))]
	}
	return Int(max)
}
