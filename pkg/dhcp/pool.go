package dhcp

import (
	"errors"
	"fmt"
	"net"

	"leased/internal/bitmap"
)

var (
	ErrPoolExhausted = errors.New("no free address in pool")
	ErrConflict      = errors.New("address reserved by another client")
)

type slotState uint8

const (
	slotReserved slotState = iota + 1
	slotAssigned
)

type slot struct {
	state slotState
	owner string
}

// Pool partitions the configured address range into free, reserved and
// assigned slots. It is not safe for concurrent use on its own: the
// lease manager serializes every pool mutation together with the store
// mutation it belongs to.
type Pool struct {
	start net.IP
	end   net.IP
	size  int

	used       *bitmap.Bitmap
	slots      map[int]*slot
	static     map[string]int
	staticOffs map[int]struct{}
}

func NewPool(start, end string) (*Pool, error) {
	startIP := net.ParseIP(start).To4()
	endIP := net.ParseIP(end).To4()

	if startIP == nil || endIP == nil {
		return nil, errors.New("invalid ip range")
	}

	startInt := ipToUint32(startIP)
	endInt := ipToUint32(endIP)
	if endInt < startInt {
		return nil, errors.New("end IP must be >= start IP")
	}

	total := int(endInt - startInt + 1)
	return &Pool{
		start:      startIP,
		end:        endIP,
		size:       total,
		used:       bitmap.New(total),
		slots:      make(map[int]*slot),
		static:     make(map[string]int),
		staticOffs: make(map[int]struct{}),
	}, nil
}

// AddStaticReservation pins an in-range address to a client. The slot is
// withheld from dynamic allocation permanently.
func (p *Pool) AddStaticReservation(clientID string, ip net.IP) error {
	offset, ok := p.offsetOf(ip)
	if !ok {
		return fmt.Errorf("static reservation %s outside pool range", ip)
	}
	if prev, exists := p.slots[offset]; exists && prev.owner != clientID {
		return fmt.Errorf("static reservation %s already taken", ip)
	}
	p.static[clientID] = offset
	p.staticOffs[offset] = struct{}{}
	p.used.Set(offset)
	return nil
}

// Reserve hands out the lowest-numbered free address. A client that
// already holds a slot gets the same address back, so retransmitted
// discovers never consume a second one.
func (p *Pool) Reserve(clientID string) (net.IP, error) {
	if offset, ok := p.static[clientID]; ok {
		if p.slots[offset] == nil {
			p.slots[offset] = &slot{state: slotReserved, owner: clientID}
		}
		return p.addressAt(offset), nil
	}

	for offset, s := range p.slots {
		if s.owner == clientID {
			return p.addressAt(offset), nil
		}
	}

	offset := p.used.FindNextClearBit(0)
	if offset == -1 {
		return nil, ErrPoolExhausted
	}

	p.used.Set(offset)
	p.slots[offset] = &slot{state: slotReserved, owner: clientID}
	return p.addressAt(offset), nil
}

// Confirm promotes a reservation to assigned. The slot must still belong
// to clientID; a reservation stolen by config or lost to a restart fails
// with ErrConflict and the caller restarts negotiation.
func (p *Pool) Confirm(ip net.IP, clientID string) error {
	offset, ok := p.offsetOf(ip)
	if !ok {
		return ErrConflict
	}

	s := p.slots[offset]
	if s == nil || s.owner != clientID {
		return ErrConflict
	}

	s.state = slotAssigned
	return nil
}

// Free returns an address to the free partition. Freeing an unknown or
// already-free address is a no-op. Statically reserved slots stay
// withheld from dynamic allocation.
func (p *Pool) Free(ip net.IP) {
	offset, ok := p.offsetOf(ip)
	if !ok {
		return
	}

	delete(p.slots, offset)
	if _, isStatic := p.staticOffs[offset]; isStatic {
		return
	}
	p.used.Clear(offset)
}

// MarkConflict quarantines an address another host answered for, so it
// is never handed out again until the server restarts.
func (p *Pool) MarkConflict(ip net.IP) {
	offset, ok := p.offsetOf(ip)
	if !ok {
		return
	}
	p.used.Set(offset)
	p.slots[offset] = &slot{state: slotAssigned, owner: "!conflict"}
}

// Adopt rebuilds a slot from a persisted lease at startup.
func (p *Pool) Adopt(ip net.IP, clientID string, assigned bool) error {
	offset, ok := p.offsetOf(ip)
	if !ok {
		return fmt.Errorf("lease address %s outside pool range", ip)
	}
	if s := p.slots[offset]; s != nil && s.owner != clientID {
		return fmt.Errorf("lease address %s already occupied", ip)
	}

	state := slotReserved
	if assigned {
		state = slotAssigned
	}
	p.used.Set(offset)
	p.slots[offset] = &slot{state: state, owner: clientID}
	return nil
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) InUse() int {
	return p.used.Count()
}

// Active counts slots backed by a live reservation or assignment.
func (p *Pool) Active() int {
	return len(p.slots)
}

func (p *Pool) offsetOf(ip net.IP) (int, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	offset := int(ipToUint32(ip4)) - int(ipToUint32(p.start))
	if offset < 0 || offset >= p.size {
		return 0, false
	}
	return offset, true
}

func (p *Pool) addressAt(offset int) net.IP {
	return offsetToIP(p.start, offset)
}
