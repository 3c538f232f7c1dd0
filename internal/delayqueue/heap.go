package delayqueue

// minHeap is a binary min-heap ordered by less.
type minHeap[T any] struct {
	buf  []T
	less func(a, b T) bool
}

func (h *minHeap[T]) Len() int {
	return len(h.buf)
}

// Peek returns the minimum element without removing it.
func (h *minHeap[T]) Peek() T {
	return h.buf[0]
}

// Push adds x in O(log n).
func (h *minHeap[T]) Push(x T) {
	h.buf = append(h.buf, x)
	h.up(len(h.buf) - 1)
}

// Pop removes and returns the minimum element in O(log n).
func (h *minHeap[T]) Pop() T {
	n := len(h.buf) - 1
	h.swap(0, n)
	h.down(0, n)
	top := h.buf[n]
	var zero T
	h.buf[n] = zero
	h.buf = h.buf[:n]
	return top
}

func (h *minHeap[T]) swap(i, j int) {
	h.buf[i], h.buf[j] = h.buf[j], h.buf[i]
}

func (h *minHeap[T]) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !h.less(h.buf[j], h.buf[i]) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *minHeap[T]) down(i, n int) {
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1 // left child
		if j2 := j1 + 1; j2 < n && h.less(h.buf[j2], h.buf[j1]) {
			j = j2 // right child
		}
		if !h.less(h.buf[j], h.buf[i]) {
			break
		}
		h.swap(i, j)
		i = j
	}
}
