package buffers

import (
	"sync"
	"testing"
)

func TestGetPut_CorrectSize(t *testing.T) {
	buf := Get()
	if buf == nil {
		t.Fatal("Get() returned nil")
	}
	if len(*buf) != HalfSize {
		t.Errorf("len(*buf) = %d, want %d", len(*buf), HalfSize)
	}
	Put(buf)

	buf2 := Get()
	if len(*buf2) != HalfSize {
		t.Errorf("len(*buf2) = %d, want %d", len(*buf2), HalfSize)
	}
	Put(buf2)
}

func TestPut_WrongSizeNotPooled(t *testing.T) {
	wrongSize := make([]byte, 1024)
	Put(&wrongSize) // must not panic
}

func TestPut_NilIsSafe(t *testing.T) {
	Put(nil) // must not panic
}

func TestConcurrentGetPut(t *testing.T) {
	const goroutines = 8
	const iterations = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				buf := Get()
				(*buf)[0] = byte(j)
				Put(buf)
			}
		}()
	}
	wg.Wait()
}
