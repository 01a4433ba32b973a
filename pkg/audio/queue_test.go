package audio_test

import (
	"sync"
	"testing"

	"github.com/voxduct/voxduct/pkg/audio"
)

// monoFrame wraps raw PCM bytes in the shape the agent-receive side enqueues.
func monoFrame(data ...byte) audio.AudioFrame {
	return audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1}
}

func TestFrameQueue_FIFO(t *testing.T) {
	q := audio.NewFrameQueue()
	q.Push(monoFrame(1))
	q.Push(monoFrame(2))
	q.Push(monoFrame(3))

	for want := byte(1); want <= 3; want++ {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", want)
		}
		if got.Data[0] != want {
			t.Fatalf("pop order broken: got %d, want %d", got.Data[0], want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("queue should be empty after three pops")
	}
}

func TestFrameQueue_TryPopEmpty(t *testing.T) {
	q := audio.NewFrameQueue()
	if f, ok := q.TryPop(); ok || f.Data != nil {
		t.Errorf("TryPop on empty queue = (%v, %v), want (zero frame, false)", f, ok)
	}
}

func TestFrameQueue_PushEmptyIgnored(t *testing.T) {
	q := audio.NewFrameQueue()
	q.Push(audio.AudioFrame{})
	q.Push(audio.AudioFrame{Data: []byte{}, SampleRate: 16000, Channels: 1})
	if q.Len() != 0 {
		t.Errorf("Len = %d after empty pushes, want 0", q.Len())
	}
}

func TestFrameQueue_Drain(t *testing.T) {
	q := audio.NewFrameQueue()
	q.Push(monoFrame(1))
	q.Push(monoFrame(2))
	if n := q.Drain(); n != 2 {
		t.Errorf("Drain = %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after drain, want 0", q.Len())
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop after drain should report empty")
	}
}

// TestFrameQueue_ConcurrentFIFO pushes N frames from one goroutine while a
// second goroutine pops M ≤ N frames. The popped frames must equal the first
// M pushed frames in push order, with no loss or duplication.
func TestFrameQueue_ConcurrentFIFO(t *testing.T) {
	const n = 10_000
	q := audio.NewFrameQueue()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(monoFrame(byte(i), byte(i>>8)))
		}
	}()

	var popped []audio.AudioFrame
	go func() {
		defer wg.Done()
		for len(popped) < n/2 {
			if f, ok := q.TryPop(); ok {
				popped = append(popped, f)
			}
		}
	}()

	wg.Wait()

	for i, f := range popped {
		got := int(f.Data[0]) | int(f.Data[1])<<8
		if got != i {
			t.Fatalf("frame %d: got value %d, queue reordered or dropped frames", i, got)
		}
	}
}

func TestFrameQueue_LenTracksContents(t *testing.T) {
	q := audio.NewFrameQueue()
	for i := 0; i < 5; i++ {
		q.Push(monoFrame(byte(i)))
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}
	q.TryPop()
	q.TryPop()
	if q.Len() != 3 {
		t.Errorf("Len = %d after two pops, want 3", q.Len())
	}
}
