package proxy

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kgourjau/BridgeAI/pkg/sse"
)

// keepAliveComment is ignored by SSE clients.
var keepAliveComment = []byte(": keep-alive" + sse.Delimiter)

// disconnect records that a streaming client went away and cancels the
// upstream request behind it.
type disconnect struct {
	cancel context.CancelFunc

	once sync.Once
	gone atomic.Bool
	err  error
}

// trip marks the client as gone. Only the first call has an effect.
func (d *disconnect) trip(err error) {
	d.once.Do(func() {
		d.err = err
		d.gone.Store(true)
		d.cancel()
	})
}

func (d *disconnect) tripped() bool {
	return d.gone.Load()
}

// keepAlive writes an SSE comment to w every KeepAliveInterval until the
// returned stop func is called. A rejected write trips gone, so a client
// that hung up is noticed while the upstream is silent.
func (p *Proxy) keepAlive(w io.Writer, gone *disconnect) (stop func()) {
	interval := p.config.KeepAliveInterval
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := w.Write(keepAliveComment); err != nil {
					gone.trip(err)
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
