package dhcp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"leased/internal/metrics"
	"leased/internal/storage"
)

var (
	// ErrNoBinding means the requested address is not reserved or
	// assigned to the client; the client has to restart from discover.
	ErrNoBinding = errors.New("requested address not bound to client")

	// ErrUnknownClient is the non-fatal answer to releasing a client
	// that holds no lease.
	ErrUnknownClient = errors.New("no lease for client")

	// ErrAddressInUse means the ARP probe saw another host answering
	// for the candidate address.
	ErrAddressInUse = errors.New("address already in use on the network")
)

// ProbeFunc reports whether an address is already claimed on the wire.
type ProbeFunc func(ip net.IP) (bool, error)

// Manager is the single serialization point for lease state. Every
// transition pairs a pool mutation with a store mutation under one
// lock, so readers never observe one without the other.
type Manager struct {
	mu           sync.RWMutex
	pool         *Pool
	store        storage.LeaseStore
	leaseTime    time.Duration
	offerTimeout time.Duration
	probe        ProbeFunc
}

func NewManager(pool *Pool, store storage.LeaseStore, leaseTime, offerTimeout time.Duration) (*Manager, error) {
	m := &Manager{
		pool:         pool,
		store:        store,
		leaseTime:    leaseTime,
		offerTimeout: offerTimeout,
	}

	if err := m.restore(); err != nil {
		return nil, fmt.Errorf("failed to load leases: %v", err)
	}
	return m, nil
}

// SetProbe installs an address-in-use check run before a fresh offer.
func (m *Manager) SetProbe(probe ProbeFunc) {
	m.probe = probe
}

// restore rebuilds pool occupancy from leases that survived a restart.
// Rows already past their window are dropped instead of adopted.
func (m *Manager) restore() error {
	leases, err := m.store.ListLeases()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, l := range leases {
		if l.State != storage.StateOffered && l.State != storage.StateBound {
			continue
		}
		if l.Expired(now) {
			if err := m.store.DeleteLease(l.IP); err != nil {
				log.Warnf("Failed to drop stale lease for IP %s: %v", l.IP, err)
			}
			continue
		}
		if err := m.pool.Adopt(l.IP, l.ClientID.String(), l.State == storage.StateBound); err != nil {
			log.Warnf("Skipping persisted lease: %v", err)
		}
	}

	m.publishGauges()
	return nil
}

// Offer reserves an address for the client and records the lease as
// offered. Retransmitted discovers get the same address back without a
// second reservation; a still-bound client is offered its own address.
func (m *Manager) Offer(clientID net.HardwareAddr, hostname string) (net.IP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	existing, err := m.store.GetLeaseByClientID(clientID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Expired(now) {
		if existing.State == storage.StateBound {
			return existing.IP, nil
		}
		// refresh the offer window on a retransmit
		existing.LeaseStart = now
		existing.LeaseEnd = now.Add(m.offerTimeout)
		if hostname != "" {
			existing.Hostname = hostname
		}
		if err := m.store.SaveLease(existing); err != nil {
			return nil, err
		}
		return existing.IP, nil
	}
	if existing != nil {
		m.expireLocked(existing)
	}

	ip, err := m.pool.Reserve(clientID.String())
	if err != nil {
		return nil, err
	}

	if m.probe != nil {
		inUse, perr := m.probe(ip)
		if perr != nil {
			m.pool.Free(ip)
			return nil, fmt.Errorf("arp check error: %v", perr)
		}
		if inUse {
			metrics.ArpCheckFailures.Inc()
			m.pool.MarkConflict(ip)
			return nil, ErrAddressInUse
		}
	}

	lease := &storage.Lease{
		IP:         ip,
		ClientID:   clientID,
		Hostname:   hostname,
		State:      storage.StateOffered,
		LeaseStart: now,
		LeaseEnd:   now.Add(m.offerTimeout),
	}
	if err := m.store.SaveLease(lease); err != nil {
		m.pool.Free(ip)
		return nil, err
	}

	metrics.LeaseOffers.Inc()
	m.publishGauges()
	return ip, nil
}

// Bind confirms the client's reserved address, or renews a bound one.
// A requested address that does not match the client's slot leaves all
// state untouched and returns ErrNoBinding so the caller can NAK.
func (m *Manager) Bind(clientID net.HardwareAddr, requested net.IP) (*storage.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	lease, err := m.store.GetLeaseByClientID(clientID)
	if err != nil {
		return nil, err
	}
	if lease == nil || lease.Expired(now) {
		return nil, ErrNoBinding
	}
	if requested != nil && !lease.IP.Equal(requested) {
		return nil, ErrNoBinding
	}

	if err := m.pool.Confirm(lease.IP, clientID.String()); err != nil {
		return nil, ErrNoBinding
	}

	renewal := lease.State == storage.StateBound
	lease.State = storage.StateBound
	lease.LeaseStart = now
	lease.LeaseEnd = now.Add(m.leaseTime)
	if err := m.store.SaveLease(lease); err != nil {
		return nil, err
	}

	if renewal {
		metrics.LeaseRenewals.Inc()
	} else {
		metrics.LeaseBindings.Inc()
	}
	m.publishGauges()
	return lease, nil
}

// Release frees the client's address and purges the lease. Protocol and
// administrative releases both land here so the invariants cannot
// diverge. Unknown clients get ErrUnknownClient, a warning rather than
// a failure.
func (m *Manager) Release(clientID net.HardwareAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lease, err := m.store.GetLeaseByClientID(clientID)
	if err != nil {
		return err
	}
	if lease == nil {
		return ErrUnknownClient
	}

	if err := m.store.DeleteLease(lease.IP); err != nil {
		return err
	}
	m.pool.Free(lease.IP)

	log.Infof("[RELEASE] MAC=%s IP=%s", clientID, lease.IP)
	m.publishGauges()
	return nil
}

// ReapExpired frees every offered or bound lease whose window has
// passed. Running it twice over the same clock reading is a no-op.
func (m *Manager) ReapExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	leases, err := m.store.ListLeases()
	if err != nil {
		log.Errorf("Lease reap: %v", err)
		return 0
	}

	reaped := 0
	for _, l := range leases {
		if l.State != storage.StateOffered && l.State != storage.StateBound {
			continue
		}
		if !l.Expired(now) {
			continue
		}
		m.expireLocked(l)
		reaped++
	}

	if reaped > 0 {
		metrics.LeaseExpirations.Add(float64(reaped))
		m.publishGauges()
	}
	return reaped
}

// expireLocked frees the address and purges the row as one step, so no
// reader can see an expired lease still holding its slot.
func (m *Manager) expireLocked(l *storage.Lease) {
	if err := m.store.DeleteLease(l.IP); err != nil {
		log.Warnf("Failed to delete expired lease %s: %v", l.IP, err)
		return
	}
	m.pool.Free(l.IP)
	log.Infof("[EXPIRE] MAC=%s IP=%s state=%s", l.ClientID, l.IP, l.State)
}

// Snapshot returns the current offered and bound leases. Taken under
// the read side of the same lock writers use, it never sees a
// half-committed transition.
func (m *Manager) Snapshot() []*storage.Lease {
	m.mu.RLock()
	defer m.mu.RUnlock()

	leases, err := m.store.ListLeases()
	if err != nil {
		log.Errorf("Failed to list leases: %v", err)
		return nil
	}

	now := time.Now()
	var active []*storage.Lease
	for _, l := range leases {
		if l.Expired(now) {
			continue
		}
		active = append(active, l)
	}
	return active
}

// GetByClientID returns the client's live lease, or nil.
func (m *Manager) GetByClientID(clientID net.HardwareAddr) *storage.Lease {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lease, err := m.store.GetLeaseByClientID(clientID)
	if err != nil || lease == nil || lease.Expired(time.Now()) {
		return nil
	}
	return lease
}

func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) publishGauges() {
	active := m.pool.Active()
	metrics.ActiveLeases.Set(float64(active))
	metrics.AvailableLeases.Set(float64(m.pool.Size() - m.pool.InUse()))
}
