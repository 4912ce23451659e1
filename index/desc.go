package index

import (
	"sync"

	"github.com/bobg/chunkstore"
)

// descPool hands out blob descriptors with increasing IDs.
// Names are derived from IDs with chunkstore.BlobName.
type descPool struct {
	mu   sync.Mutex
	next int64
}

func newDescPool(maxID int64) *descPool {
	return &descPool{next: maxID + 1}
}

func (p *descPool) reserve() chunkstore.BlobDesc {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next
	p.next++
	return chunkstore.BlobDesc{ID: id, Name: chunkstore.BlobName(id)}
}

// advance makes sure id is never handed out by reserve.
func (p *descPool) advance(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id >= p.next {
		p.next = id + 1
	}
}

func (p *descPool) reset() {
	p.mu.Lock()
	p.next = 1
	p.mu.Unlock()
}
