package dhcp_test

import (
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mcuadros/go-defaults"

	"leased/internal/config"
	"leased/internal/storage"
	"leased/pkg/dhcp"
)

func createTestConfig() *config.Config {
	cfg := &config.Config{}
	defaults.SetDefaults(cfg)
	cfg.Server.IPStart = "192.168.100.10"
	cfg.Server.IPEnd = "192.168.100.12"
	cfg.Server.SubnetMask = "255.255.255.0"
	cfg.Server.LeaseTime = 60
	cfg.Server.OfferTimeout = 10
	cfg.Server.Gateway = "192.168.100.1"
	cfg.Server.ServerIP = "192.168.100.1"
	cfg.Server.DNSServers = []string{"8.8.8.8", "8.8.4.4"}
	cfg.Server.Port = 6767
	cfg.Server.ClientPort = 6768
	cfg.Server.ARPCheck = false
	return cfg
}

func newTestServer(t *testing.T) *dhcp.Server {
	t.Helper()

	cfg := createTestConfig()

	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "leases.db"))
	if err != nil {
		t.Fatalf("Failed to create lease store: %v", err)
	}

	pool, err := dhcp.NewPool(cfg.Server.IPStart, cfg.Server.IPEnd)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	manager, err := dhcp.NewManager(pool, store,
		time.Duration(cfg.Server.LeaseTime)*time.Second,
		time.Duration(cfg.Server.OfferTimeout)*time.Second)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	srv := &dhcp.Server{
		Config: cfg,
		Leases: manager,
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatalf("Failed to create dummy UDP connection: %v", err)
	}
	srv.Connection = conn

	t.Cleanup(func() {
		conn.Close()
		manager.Close()
	})

	return srv
}

func discoverFrom(mac net.HardwareAddr) *dhcp.Message {
	msg := dhcp.NewMessage()
	msg.OpCode = dhcp.OpCodeRequest
	msg.CHAddr = mac
	msg.Options.Add(dhcp.OptionDHCPMessageType, uint8(dhcp.MessageTypeDiscover))
	return msg
}

func requestFrom(mac net.HardwareAddr, requested net.IP) *dhcp.Message {
	msg := dhcp.NewMessage()
	msg.OpCode = dhcp.OpCodeRequest
	msg.CHAddr = mac
	msg.Options.Add(dhcp.OptionDHCPMessageType, uint8(dhcp.MessageTypeRequest))
	msg.Options.Add(dhcp.OptionRequestedIPAddress, requested)
	return msg
}

func TestHandleDiscoverCreatesOffer(t *testing.T) {
	srv := newTestServer(t)
	mac := net.HardwareAddr{0x00, 0xAB, 0xCD, 0x12, 0x34, 0x56}

	srv.HandleDiscover(discoverFrom(mac))

	lease := srv.Leases.GetByClientID(mac)
	if lease == nil {
		t.Fatalf("Expected a lease for MAC=%s after discover, found none", mac)
	}
	if lease.State != storage.StateOffered {
		t.Errorf("Expected state offered, got %s", lease.State)
	}
}

func TestHandleRequestBindsOfferedAddress(t *testing.T) {
	srv := newTestServer(t)
	mac := net.HardwareAddr{0x00, 0xAB, 0xCD, 0x12, 0x34, 0x56}

	srv.HandleDiscover(discoverFrom(mac))
	offered := srv.Leases.GetByClientID(mac)
	if offered == nil {
		t.Fatal("Discover produced no lease")
	}

	srv.HandleRequest(requestFrom(mac, offered.IP))

	bound := srv.Leases.GetByClientID(mac)
	if bound == nil || bound.State != storage.StateBound {
		t.Fatalf("Expected bound lease after request, got %+v", bound)
	}
	if !bound.IP.Equal(offered.IP) {
		t.Errorf("Bound IP %s differs from offered %s", bound.IP, offered.IP)
	}
}

func TestHandleRequestWithoutOfferDoesNotBind(t *testing.T) {
	srv := newTestServer(t)
	mac := net.HardwareAddr{0x00, 0xAB, 0xCD, 0x12, 0x34, 0x56}

	srv.HandleRequest(requestFrom(mac, net.ParseIP("192.168.100.10")))

	if lease := srv.Leases.GetByClientID(mac); lease != nil {
		t.Fatalf("Expected no lease for a request without offer, got %+v", lease)
	}
}

func TestHandleReleaseFreesAddress(t *testing.T) {
	srv := newTestServer(t)
	mac := net.HardwareAddr{0x00, 0xAB, 0xCD, 0x12, 0x34, 0x56}

	srv.HandleDiscover(discoverFrom(mac))
	offered := srv.Leases.GetByClientID(mac)
	if offered == nil {
		t.Fatal("Discover produced no lease")
	}
	srv.HandleRequest(requestFrom(mac, offered.IP))

	release := dhcp.NewMessage()
	release.OpCode = dhcp.OpCodeRequest
	release.CHAddr = mac
	release.CIAddr = offered.IP
	release.Options.Add(dhcp.OptionDHCPMessageType, uint8(dhcp.MessageTypeRelease))
	srv.HandleRelease(release)

	if lease := srv.Leases.GetByClientID(mac); lease != nil {
		t.Fatalf("Expected lease gone after release, got %+v", lease)
	}

	// freed address goes back into rotation
	other := net.HardwareAddr{0x00, 0xAB, 0xCD, 0x12, 0x34, 0x57}
	srv.HandleDiscover(discoverFrom(other))
	next := srv.Leases.GetByClientID(other)
	if next == nil || !next.IP.Equal(offered.IP) {
		t.Errorf("Expected released address %s to be re-offered, got %+v", offered.IP, next)
	}
}

func TestHandleMessageDropsMalformedDatagram(t *testing.T) {
	srv := newTestServer(t)

	srv.HandleMessage([]byte{0x01, 0x02, 0x03}, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 6768})

	if got := len(srv.Leases.Snapshot()); got != 0 {
		t.Errorf("Malformed datagram mutated lease state: %d leases", got)
	}
}

func TestConcurrentDiscovers(t *testing.T) {
	srv := newTestServer(t)

	var wg sync.WaitGroup
	base := []byte{0x00, 0x00, 0x00, 0x12, 0x34, 0x00}
	discovers := 3

	for i := 0; i < discovers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			mac := append([]byte(nil), base...)
			mac[5] = byte(idx)
			srv.HandleDiscover(discoverFrom(net.HardwareAddr(mac)))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < discovers; i++ {
		mac := append([]byte(nil), base...)
		mac[5] = byte(i)
		lease := srv.Leases.GetByClientID(net.HardwareAddr(mac))
		if lease == nil {
			t.Fatalf("No lease for client %d", i)
		}
		if seen[lease.IP.String()] {
			t.Errorf("Address %s offered to more than one client", lease.IP)
		}
		seen[lease.IP.String()] = true
	}
}
