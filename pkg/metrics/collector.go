package metrics

import (
	"context"
	"time"
)

const collectInterval = 5 * time.Second

// WorkerLister reports the current set of live workers. Satisfied by
// *queue.Membership; narrowed to an interface here so this package does not
// import pkg/queue.
type WorkerLister interface {
	LiveWorkers(ctx context.Context) ([]string, error)
}

// Collector periodically samples membership size into ActiveWorkers.
type Collector struct {
	members WorkerLister
	stopCh  chan struct{}
}

func NewCollector(members WorkerLister) *Collector {
	return &Collector{members: members, stopCh: make(chan struct{})}
}

// Start begins the sampling loop in a background goroutine.
func (c *Collector) Start() {
	go c.run()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) run() {
	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			live, err := c.members.LiveWorkers(ctx)
			cancel()
			if err == nil {
				ActiveWorkers.Set(float64(len(live)))
			}
		case <-c.stopCh:
			return
		}
	}
}
