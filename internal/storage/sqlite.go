package storage

import (
	"database/sql"
	"fmt"
	"net"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = createTable(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SqliteStore{db}, nil
}

func createTable(db *sql.DB) error {
	query := `CREATE TABLE IF NOT EXISTS leases (
    client_id TEXT NOT NULL UNIQUE PRIMARY KEY,
    ip TEXT NOT NULL UNIQUE,
    hostname TEXT,
    state INTEGER NOT NULL,
    lease_start TIMESTAMP NOT NULL,
    lease_end TIMESTAMP NOT NULL
	);
	`

	_, err := db.Exec(query)
	return err
}

func (s *SqliteStore) SaveLease(lease *Lease) error {
	query := `INSERT OR REPLACE INTO leases (client_id, ip, hostname, state, lease_start, lease_end)
		VALUES (?, ?, ?, ?, ?, ?);
	`

	_, err := s.db.Exec(query, lease.ClientID.String(), lease.IP.String(),
		lease.Hostname, uint8(lease.State), lease.LeaseStart, lease.LeaseEnd)
	return err
}

func (s *SqliteStore) GetLeaseByIP(ip net.IP) (*Lease, error) {
	var lease Lease
	var clientKey string
	var state uint8

	query := `SELECT client_id, hostname, state, lease_start, lease_end FROM leases WHERE ip = ?;`
	row := s.db.QueryRow(query, ip.String())
	err := row.Scan(
		&clientKey,
		&lease.Hostname,
		&state,
		&lease.LeaseStart,
		&lease.LeaseEnd,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lease.IP = ip
	lease.State = LeaseState(state)
	lease.ClientID, err = net.ParseMAC(clientKey)
	if err != nil {
		return nil, fmt.Errorf("corrupt client ID %q for %s: %v", clientKey, ip, err)
	}

	return &lease, nil
}

func (s *SqliteStore) GetLeaseByClientID(id net.HardwareAddr) (*Lease, error) {
	var lease Lease
	var ipKey string
	var state uint8

	query := `SELECT ip, hostname, state, lease_start, lease_end FROM leases WHERE client_id = ?;`
	row := s.db.QueryRow(query, id.String())
	err := row.Scan(
		&ipKey,
		&lease.Hostname,
		&state,
		&lease.LeaseStart,
		&lease.LeaseEnd,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lease.IP = net.ParseIP(ipKey)
	lease.State = LeaseState(state)
	lease.ClientID = id

	return &lease, nil
}

func (s *SqliteStore) DeleteLease(ip net.IP) error {
	query := `DELETE FROM leases WHERE ip = ?;`
	_, err := s.db.Exec(query, ip.String())
	return err
}

func (s *SqliteStore) ListLeases() ([]*Lease, error) {
	var leases []*Lease

	query := `SELECT client_id, ip, hostname, state, lease_start, lease_end FROM leases;`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var lease Lease
		var clientKey string
		var ipKey string
		var state uint8
		err := rows.Scan(
			&clientKey,
			&ipKey,
			&lease.Hostname,
			&state,
			&lease.LeaseStart,
			&lease.LeaseEnd,
		)
		if err != nil {
			return nil, err
		}
		lease.ClientID, err = net.ParseMAC(clientKey)
		if err != nil {
			log.Warnf("Skipping lease with corrupt client ID %q: %v", clientKey, err)
			continue
		}
		lease.IP = net.ParseIP(ipKey)
		lease.State = LeaseState(state)
		leases = append(leases, &lease)
	}

	return leases, rows.Err()
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}
