package logging

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var errAsyncFileClosed = errors.New("async file is closed")

// asyncFile provides non-blocking writes to a file. Writes are applied in
// queue order by a single background goroutine.
type asyncFile struct {
	file  *os.File
	queue chan []byte
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	errMu    sync.Mutex
	writeErr error
}

func newAsyncFile(file *os.File, buffer int) *asyncFile {
	af := &asyncFile{
		file:  file,
		queue: make(chan []byte, buffer),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af
}

// Write queues a copy of data.
func (af *asyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()
	if af.stopped {
		return errAsyncFileClosed
	}
	af.queue <- append([]byte(nil), data...)
	return nil
}

func (af *asyncFile) processQueue() {
	defer af.wg.Done()
	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			af.errMu.Lock()
			if af.writeErr == nil {
				af.writeErr = fmt.Errorf("write %s: %w", af.file.Name(), err)
			}
			af.errMu.Unlock()
		}
	}
}

// Flush stops accepting writes and waits until the queue is drained. The file
// stays open. It returns the first write error.
func (af *asyncFile) Flush() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	af.errMu.Lock()
	defer af.errMu.Unlock()
	return af.writeErr
}
