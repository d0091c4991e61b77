package storage

import (
	"net"
	"time"
)

type LeaseState uint8

const (
	StateOffered LeaseState = iota + 1
	StateBound
	StateReleased
	StateExpired
)

func (s LeaseState) String() string {
	switch s {
	case StateOffered:
		return "offered"
	case StateBound:
		return "bound"
	case StateReleased:
		return "released"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Lease binds a client identifier to an address for a bounded window.
// For offered leases the window is the offer timeout, for bound leases
// the configured lease time. LeaseEnd is always after LeaseStart.
type Lease struct {
	IP         net.IP
	ClientID   net.HardwareAddr
	Hostname   string
	State      LeaseState
	LeaseStart time.Time
	LeaseEnd   time.Time
}

func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.LeaseEnd)
}

type LeaseStore interface {
	SaveLease(lease *Lease) error
	GetLeaseByClientID(id net.HardwareAddr) (*Lease, error)
	GetLeaseByIP(ip net.IP) (*Lease, error)
	DeleteLease(ip net.IP) error
	ListLeases() ([]*Lease, error)
	Close() error
}
