// Package bufpool pools the scratch buffers used to encode messages.
package bufpool

import (
	"bytes"
	"sync"
)

// maxPooled is the largest capacity a buffer may have to be pooled.
// One large message should not pin its buffer for the life of the process.
const maxPooled = 64 << 10

var pool sync.Pool

// Get returns an empty buffer from the pool or a new one if the pool
// is empty.
func Get() *bytes.Buffer {
	b, ok := pool.Get().(*bytes.Buffer)
	if !ok {
		b = &bytes.Buffer{}
	}
	return b
}

// Put returns b to the pool. Buffers that grew beyond maxPooled are
// dropped.
func Put(b *bytes.Buffer) {
	if b.Cap() > maxPooled {
		return
	}
	b.Reset()
	pool.Put(b)
}
