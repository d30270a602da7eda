package terminal

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// CaptureBuffer is the default in-process Pipeline: it accumulates raw
// output and hands it back verbatim at serialization. A richer emulator can
// be swapped in through PipelineFactory without touching the tracker.
type CaptureBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	disposed bool
}

func NewCaptureBuffer(string) Pipeline { return &CaptureBuffer{} }

func (c *CaptureBuffer) Write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.buf.Write(data)
}

func (c *CaptureBuffer) ScrollToBottom() {}

func (c *CaptureBuffer) Serialize(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return "", errors.New("pipeline disposed")
	}
	out := c.buf.String()
	c.disposed = true
	c.buf.Reset()
	return out, nil
}

func (c *CaptureBuffer) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.buf.Reset()
}
