package dhcp_test

import (
	"errors"
	"net"
	"testing"

	"leased/pkg/dhcp"
)

func TestPoolReserveLowestFree(t *testing.T) {
	pool, err := dhcp.NewPool("10.0.0.10", "10.0.0.12")
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	ip, err := pool.Reserve("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if ip.String() != "10.0.0.10" {
		t.Errorf("Expected lowest free 10.0.0.10, got %s", ip)
	}

	ip2, err := pool.Reserve("aa:bb:cc:dd:ee:02")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if ip2.String() != "10.0.0.11" {
		t.Errorf("Expected 10.0.0.11 for second client, got %s", ip2)
	}
}

func TestPoolReserveIdempotent(t *testing.T) {
	pool, err := dhcp.NewPool("10.0.0.10", "10.0.0.12")
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	first, err := pool.Reserve("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	second, err := pool.Reserve("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("Repeat reserve failed: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("Repeat reserve returned %s, want %s", second, first)
	}
	if pool.Active() != 1 {
		t.Errorf("Expected 1 active slot after repeat reserve, got %d", pool.Active())
	}
}

func TestPoolExhausted(t *testing.T) {
	pool, err := dhcp.NewPool("10.0.0.10", "10.0.0.11")
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	if _, err := pool.Reserve("aa:bb:cc:dd:ee:01"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if _, err := pool.Reserve("aa:bb:cc:dd:ee:02"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	_, err = pool.Reserve("aa:bb:cc:dd:ee:03")
	if !errors.Is(err, dhcp.ErrPoolExhausted) {
		t.Fatalf("Expected ErrPoolExhausted, got %v", err)
	}
}

func TestPoolConfirmConflict(t *testing.T) {
	pool, err := dhcp.NewPool("10.0.0.10", "10.0.0.12")
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	ip, err := pool.Reserve("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if err := pool.Confirm(ip, "aa:bb:cc:dd:ee:02"); !errors.Is(err, dhcp.ErrConflict) {
		t.Errorf("Expected ErrConflict confirming another client's slot, got %v", err)
	}
	if err := pool.Confirm(ip, "aa:bb:cc:dd:ee:01"); err != nil {
		t.Errorf("Confirm by owner failed: %v", err)
	}
	// confirming an already-assigned slot again is a renewal, not an error
	if err := pool.Confirm(ip, "aa:bb:cc:dd:ee:01"); err != nil {
		t.Errorf("Repeat confirm by owner failed: %v", err)
	}
}

func TestPoolFreeIdempotent(t *testing.T) {
	pool, err := dhcp.NewPool("10.0.0.10", "10.0.0.12")
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	ip, err := pool.Reserve("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	pool.Free(ip)
	pool.Free(ip)
	pool.Free(net.ParseIP("192.0.2.1")) // out of range, no-op

	got, err := pool.Reserve("aa:bb:cc:dd:ee:02")
	if err != nil {
		t.Fatalf("Reserve after free failed: %v", err)
	}
	if !got.Equal(ip) {
		t.Errorf("Expected freed address %s to be handed out again, got %s", ip, got)
	}
}

func TestPoolStaticReservation(t *testing.T) {
	pool, err := dhcp.NewPool("10.0.0.10", "10.0.0.12")
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	static := net.ParseIP("10.0.0.10")
	if err := pool.AddStaticReservation("aa:bb:cc:dd:ee:0f", static); err != nil {
		t.Fatalf("AddStaticReservation failed: %v", err)
	}

	// dynamic clients must skip the pinned slot
	ip, err := pool.Reserve("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if ip.String() != "10.0.0.11" {
		t.Errorf("Expected dynamic client to get 10.0.0.11, got %s", ip)
	}

	pinned, err := pool.Reserve("aa:bb:cc:dd:ee:0f")
	if err != nil {
		t.Fatalf("Reserve for static client failed: %v", err)
	}
	if !pinned.Equal(static) {
		t.Errorf("Expected static client to get %s, got %s", static, pinned)
	}

	// freeing a static slot must not open it to dynamic allocation
	pool.Free(static)
	next, err := pool.Reserve("aa:bb:cc:dd:ee:02")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if next.Equal(static) {
		t.Errorf("Static slot %s leaked into dynamic allocation", static)
	}
}

func TestPoolMarkConflict(t *testing.T) {
	pool, err := dhcp.NewPool("10.0.0.10", "10.0.0.11")
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	pool.MarkConflict(net.ParseIP("10.0.0.10"))

	ip, err := pool.Reserve("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if ip.String() != "10.0.0.11" {
		t.Errorf("Expected conflicted address to be skipped, got %s", ip)
	}
}
