package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	bolt "go.etcd.io/bbolt"
)

type BoltStore struct {
	db *bolt.DB
}

var (
	ipBucket     = []byte("leases_by_ip")
	clientBucket = []byte("leases_by_client")
)

func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ipBucket)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(clientBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveLease(lease *Lease) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ipBkt := tx.Bucket(ipBucket)
		clientBkt := tx.Bucket(clientBucket)
		if ipBkt == nil || clientBkt == nil {
			return errors.New("missing buckets in DB")
		}

		data, err := serializeLease(lease)
		if err != nil {
			return err
		}

		if e := ipBkt.Put(lease.IP.To4(), data); e != nil {
			return e
		}

		return clientBkt.Put(lease.ClientID, data)
	})
}

func (s *BoltStore) GetLeaseByClientID(id net.HardwareAddr) (*Lease, error) {
	var lease *Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		clientBkt := tx.Bucket(clientBucket)
		if clientBkt == nil {
			return nil
		}

		data := clientBkt.Get(id)
		if data == nil {
			return nil
		}

		l, err := deserializeLease(data)
		if err != nil {
			return err
		}

		lease = l

		return nil
	})
	return lease, err
}

func (s *BoltStore) GetLeaseByIP(ip net.IP) (*Lease, error) {
	var lease *Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		ipBkt := tx.Bucket(ipBucket)
		if ipBkt == nil {
			return nil
		}

		data := ipBkt.Get(ip.To4())
		if data == nil {
			return nil
		}

		l, err := deserializeLease(data)
		if err != nil {
			return err
		}

		lease = l
		return nil
	})
	return lease, err
}

func (s *BoltStore) DeleteLease(ip net.IP) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ipBkt := tx.Bucket(ipBucket)
		clientBkt := tx.Bucket(clientBucket)

		if ipBkt == nil || clientBkt == nil {
			return nil
		}
		data := ipBkt.Get(ip.To4())
		if data == nil {
			return nil
		}

		l, err := deserializeLease(data)
		if err != nil {
			return err
		}

		if err := ipBkt.Delete(ip.To4()); err != nil {
			return err
		}
		return clientBkt.Delete(l.ClientID)
	})
}

func (s *BoltStore) ListLeases() ([]*Lease, error) {
	var leases []*Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		ipBkt := tx.Bucket(ipBucket)
		if ipBkt == nil {
			return nil
		}
		c := ipBkt.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			l, err := deserializeLease(v)
			if err != nil {
				continue
			}
			leases = append(leases, l)
		}
		return nil
	})
	return leases, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Layout: 4 bytes IP, 1 byte state, 8 bytes lease start, 8 bytes lease
// end, 1 byte client ID length, client ID bytes, hostname remainder.
// The client ID is length-prefixed because hardware addresses on the
// wire run up to 16 bytes, not just the 6 of Ethernet.
const leaseRecordMin = 22

func serializeLease(l *Lease) ([]byte, error) {
	ip := l.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid IP: %v", l.IP)
	}
	if len(l.ClientID) == 0 || len(l.ClientID) > 255 {
		return nil, fmt.Errorf("bad client ID length: %d", len(l.ClientID))
	}

	out := make([]byte, leaseRecordMin+len(l.ClientID)+len(l.Hostname))
	copy(out[0:4], ip)
	out[4] = byte(l.State)
	binary.BigEndian.PutUint64(out[5:13], uint64(l.LeaseStart.Unix()))
	binary.BigEndian.PutUint64(out[13:21], uint64(l.LeaseEnd.Unix()))
	out[21] = byte(len(l.ClientID))
	copy(out[leaseRecordMin:], l.ClientID)
	copy(out[leaseRecordMin+len(l.ClientID):], l.Hostname)

	return out, nil
}

func deserializeLease(data []byte) (*Lease, error) {
	if len(data) < leaseRecordMin {
		return nil, fmt.Errorf("invalid data length for lease, want >=%d, got %d", leaseRecordMin, len(data))
	}

	idLen := int(data[21])
	if idLen == 0 || leaseRecordMin+idLen > len(data) {
		return nil, fmt.Errorf("client ID length %d exceeds record", idLen)
	}

	startSec := int64(binary.BigEndian.Uint64(data[5:13]))
	endSec := int64(binary.BigEndian.Uint64(data[13:21]))

	clientID := make(net.HardwareAddr, idLen)
	copy(clientID, data[leaseRecordMin:leaseRecordMin+idLen])

	return &Lease{
		IP:         net.IPv4(data[0], data[1], data[2], data[3]),
		ClientID:   clientID,
		State:      LeaseState(data[4]),
		LeaseStart: time.Unix(startSec, 0),
		LeaseEnd:   time.Unix(endSec, 0),
		Hostname:   string(data[leaseRecordMin+idLen:]),
	}, nil
}
