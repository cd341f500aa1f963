package upstream

import "sync"

type Buffer struct {
	data []byte
}

var _pool = sync.Pool{New: func() any { return &Buffer{} }}

func Acquire() *Buffer {
	b, _ := _pool.Get().(*Buffer)
	if b == nil {
		return &Buffer{}
	}
	return b
}

func Recycle(b *Buffer) {
	_pool.Put(b)
}

func Missing() *Buffer {
	return nil
}

func Len(b *Buffer) int {
	return len(b.data)
}

func recycleLocally() int {
	b := Acquire()
	Recycle(b)
	return len(b.data) //want "access to field `data` of a value that was put back into a pool by `Put`"
}
