package downstream

import "example.com/integration/upstream"

func useAfterRecycle() int {
	b := upstream.Acquire()
	upstream.Recycle(b)
	return len(b.data) //want "access to field `data` of a value that was put back into a pool by `Put`"
}

func doubleRecycle() {
	b := upstream.Acquire()
	upstream.Recycle(b)
	upstream.Recycle(b) //want "put into a pool of a value that was put back into a pool by `Put`, via call to `Recycle`"
}

func lenOfMissing() int {
	return upstream.Len(upstream.Missing()) //want "access to field `data` of a value that is nil, via call to `Len`"
}

func recycleOnce() int {
	b := upstream.Acquire()
	n := upstream.Len(b)
	upstream.Recycle(b)
	return n
}
