package dhcp

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Reaper periodically reclaims leases whose window has elapsed,
// covering both expired bindings and offers the client abandoned.
type Reaper struct {
	manager  *Manager
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewReaper(manager *Manager, interval time.Duration) *Reaper {
	return &Reaper{
		manager:  manager,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	log.Infof("[INIT] Reaping expired leases every %s", r.interval)
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := r.manager.ReapExpired(time.Now()); n > 0 {
					log.Infof("Reaped %d expired leases", n)
				}
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}
