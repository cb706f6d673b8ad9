package queue

import "github.com/forgeworks/appforge/internal/models"

// waitingJob is one queued entry. seq preserves submission order so equal
// priorities dispatch FIFO.
type waitingJob struct {
	job   *models.BuildJob
	seq   uint64
	index int
}

// waitingHeap orders by priority descending, then submission sequence
// ascending. Implements container/heap.Interface.
type waitingHeap []*waitingJob

func (h waitingHeap) Len() int { return len(h) }

func (h waitingHeap) Less(i, j int) bool { return h[i].before(h[j]) }

func (h waitingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitingHeap) Push(x any) {
	w := x.(*waitingJob)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waitingHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

func (w *waitingJob) before(other *waitingJob) bool {
	if w.job.Priority != other.job.Priority {
		return w.job.Priority > other.job.Priority
	}
	return w.seq < other.seq
}
