package dhcp

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"leased/internal/config"
	"leased/internal/logging"
	"leased/internal/metrics"
	"leased/internal/storage"
)

type Server struct {
	Config         *config.Config
	Leases         *Manager
	Connection     *net.UDPConn
	Interface      *net.Interface
	reaper         *Reaper
	metricsEnabled bool
	active         atomic.Bool
}

func InitServer(cfg *config.Config) (*Server, error) {
	err := logging.SetupLogging(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}

	var store storage.LeaseStore
	switch cfg.Database.Type {
	case "bolt":
		if cfg.Database.Bolt.Path == "" {
			return nil, fmt.Errorf("bolt database path is required")
		}
		store, err = storage.NewBoltStore(cfg.Database.Bolt.Path)
	case "sqlite":
		if cfg.Database.Sqlite.Path == "" {
			return nil, fmt.Errorf("sqlite database path is required")
		}
		store, err = storage.NewSqliteStore(cfg.Database.Sqlite.Path)
	case "redis":
		store, err = storage.NewRedisStore(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lease store: %v", err)
	}

	pool, err := NewPool(cfg.Server.IPStart, cfg.Server.IPEnd)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create address pool: %v", err)
	}

	for _, r := range cfg.Reservations {
		mac, err := net.ParseMAC(r.MAC)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("bad reservation MAC %q: %v", r.MAC, err)
		}
		ip := net.ParseIP(r.IP)
		if ip == nil {
			store.Close()
			return nil, fmt.Errorf("bad reservation IP %q", r.IP)
		}
		if err := pool.AddStaticReservation(mac.String(), ip); err != nil {
			store.Close()
			return nil, err
		}
	}

	manager, err := NewManager(pool, store,
		time.Duration(cfg.Server.LeaseTime)*time.Second,
		time.Duration(cfg.Server.OfferTimeout)*time.Second)
	if err != nil {
		store.Close()
		return nil, err
	}

	iface, err := net.InterfaceByName(cfg.Server.Interface)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("could not find interface %s: %v", cfg.Server.Interface, err)
	}

	if cfg.Server.ARPCheck {
		manager.SetProbe(ProbeOverIface(iface))
	}

	server := &Server{
		Config:         cfg,
		Leases:         manager,
		Interface:      iface,
		metricsEnabled: cfg.Metrics.Enabled,
	}

	if cfg.Server.CleanupExpiredInterval > 0 {
		server.reaper = NewReaper(manager, time.Duration(cfg.Server.CleanupExpiredInterval)*time.Second)
		server.reaper.Start()
	}

	if server.metricsEnabled {
		if err := metrics.StartMetricsServer(cfg.Metrics.ListenAddress); err != nil {
			log.Warnf("Could not start metrics server: %v", err)
		} else {
			log.Infof("[INIT] Metrics server listening on %s", cfg.Metrics.ListenAddress)
		}
	}

	return server, nil
}

// Active reports whether the UDP listener is up, for the management
// API's status endpoint.
func (s *Server) Active() bool {
	return s.active.Load()
}

func (s *Server) Start() error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: s.Config.Server.Port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP socket: %v", err)
	}
	s.Connection = conn
	defer conn.Close()

	s.active.Store(true)
	defer s.active.Store(false)

	log.Infof("[INIT] DHCP server listening on %s (interface: %s)", addr, s.Config.Server.Interface)

	for {
		buffer := make([]byte, 1500)
		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok {
				if errors.Is(opErr.Err, net.ErrClosed) || opErr.Err.Error() == "use of closed network connection" {
					log.Infof("Server shutting down")
					break
				}
			}
			log.Errorf("Error reading from UDP: %v", err)
			continue
		}
		go s.HandleMessage(buffer[:n], remoteAddr)
	}
	return nil
}

func (s *Server) HandleMessage(data []byte, remoteAddr *net.UDPAddr) {
	start := time.Now()

	message, err := DecodeMessage(data)
	if err != nil {
		log.Warnf("Dropping malformed datagram from %v: %v", remoteAddr, err)
		if s.metricsEnabled {
			metrics.MalformedPackets.Inc()
		}
		return
	}

	msgType := message.Options.GetMessageType()

	if s.metricsEnabled {
		metrics.MessageTypeCount.WithLabelValues(messageTypeToString(msgType)).Inc()
	}

	switch msgType {
	case MessageTypeDiscover:
		s.HandleDiscover(message)
	case MessageTypeRequest:
		s.HandleRequest(message)
	case MessageTypeRelease:
		s.HandleRelease(message)
	case MessageTypeDecline:
		s.HandleDecline(message)
	default:
		log.Infof("Ignoring unsupported DHCP message type=%d", msgType)
	}

	if s.metricsEnabled {
		duration := time.Since(start).Seconds()
		metrics.MessageLatency.WithLabelValues(messageTypeToString(msgType)).Observe(duration)
	}
}

func (s *Server) HandleDiscover(message *Message) {
	log.Infof("[DHCPDISCOVER] from MAC=%s", message.CHAddr)

	ip, err := s.Leases.Offer(message.CHAddr, message.Options.GetHostname())
	if err != nil {
		switch {
		case errors.Is(err, ErrPoolExhausted):
			// expected under load, the client retries on its own
			log.Warnf("Pool exhausted, no offer for MAC=%s", message.CHAddr)
			if s.metricsEnabled {
				metrics.PoolExhaustions.Inc()
			}
		case errors.Is(err, ErrAddressInUse):
			log.Warnf("No offer for MAC=%s: %v", message.CHAddr, err)
		default:
			log.Errorf("Error offering lease to MAC=%s: %v", message.CHAddr, err)
		}
		return
	}

	log.Infof("[DHCPOFFER] IP=%s to MAC=%s", ip, message.CHAddr)

	reply := NewMessage()
	reply.YIAddr = ip
	reply.Options.Add(OptionDHCPMessageType, uint8(MessageTypeOffer))
	s.addReplyOptions(reply)

	s.SendReply(reply, message)
}

func (s *Server) HandleRequest(message *Message) {
	requestedIP := message.Options.GetRequestedIP()
	if requestedIP == nil && !isZeroIP(message.CIAddr) {
		// renewal: the client puts its address in ciaddr instead
		requestedIP = message.CIAddr
	}
	log.Infof("[DHCPREQUEST] from MAC=%s requested=%s", message.CHAddr, requestedIP)

	lease, err := s.Leases.Bind(message.CHAddr, requestedIP)
	if err != nil {
		if errors.Is(err, ErrNoBinding) {
			s.SendNAK(message, "Requested address not bound to client")
			return
		}
		// store failure: abandon this transaction, send nothing
		log.Errorf("Error binding lease for MAC=%s: %v", message.CHAddr, err)
		return
	}

	log.Infof("[DHCPACK] IP=%s to MAC=%s until %s", lease.IP, message.CHAddr, lease.LeaseEnd.Format(time.RFC3339))

	reply := NewMessage()
	reply.YIAddr = lease.IP
	reply.Options.Add(OptionDHCPMessageType, uint8(MessageTypeAck))
	s.addReplyOptions(reply)

	s.SendReply(reply, message)
}

func (s *Server) HandleRelease(message *Message) {
	log.Infof("[DHCPRELEASE] from MAC=%s IP=%s", message.CHAddr, message.CIAddr)

	err := s.Leases.Release(message.CHAddr)
	if err != nil {
		if errors.Is(err, ErrUnknownClient) {
			log.Warnf("Release from MAC=%s with no lease", message.CHAddr)
			return
		}
		log.Errorf("Error releasing lease for MAC=%s: %v", message.CHAddr, err)
		return
	}
	if s.metricsEnabled {
		metrics.LeaseReleases.Inc()
	}
}

func (s *Server) HandleDecline(message *Message) {
	log.Infof("[DHCPDECLINE] from MAC=%s IP=%s", message.CHAddr, message.CIAddr)
	if err := s.Leases.Release(message.CHAddr); err != nil && !errors.Is(err, ErrUnknownClient) {
		log.Errorf("Error handling decline for MAC=%s: %v", message.CHAddr, err)
	}
}

// addReplyOptions attaches the network parameters every offer and ack
// carries.
func (s *Server) addReplyOptions(reply *Message) {
	reply.Options.Add(OptionSubnetMask, net.ParseIP(s.Config.Server.SubnetMask).To4())
	reply.Options.Add(OptionRouterAddress, net.ParseIP(s.Config.Server.Gateway).To4())

	var dns []net.IP
	for _, d := range s.Config.Server.DNSServers {
		if ip := net.ParseIP(d); ip != nil {
			dns = append(dns, ip)
		}
	}
	if len(dns) > 0 {
		reply.Options.Add(OptionDNSServers, dns)
	}

	reply.Options.Add(OptionIPAddressLeaseTime, uint32(s.Config.Server.LeaseTime))
	reply.Options.Add(OptionServerIdentifier, net.ParseIP(s.Config.Server.ServerIP).To4())
}

func (s *Server) SendNAK(message *Message, reason string) {
	log.Infof("[DHCPNAK] to MAC=%s: %s", message.CHAddr, reason)

	if s.metricsEnabled {
		metrics.DHCPNAKs.Inc()
	}

	reply := NewMessage()
	reply.Options.Add(OptionDHCPMessageType, uint8(MessageTypeNak))

	s.SendReply(reply, message)
}

func (s *Server) SendReply(reply *Message, req *Message) {
	d := s.determineDestAddr(req)

	reply.XID = req.XID
	reply.Flags = req.Flags
	copy(reply.CHAddr, req.CHAddr)

	raw, err := reply.Encode()
	if err != nil {
		log.Errorf("Encoding reply failed: %v", err)
		return
	}

	if _, err := s.Connection.WriteToUDP(raw, d); err != nil {
		log.Warnf("Could not send reply to %v: %v", d, err)
	}
}

func (s *Server) determineDestAddr(req *Message) *net.UDPAddr {
	clientPort := s.Config.Server.ClientPort
	if !isZeroIP(req.GIAddr) {
		return &net.UDPAddr{IP: req.GIAddr, Port: s.Config.Server.Port}
	}
	if (req.Flags & 0x8000) != 0 {
		return &net.UDPAddr{IP: net.IPv4bcast, Port: clientPort}
	}
	if !isZeroIP(req.CIAddr) {
		return &net.UDPAddr{IP: req.CIAddr, Port: clientPort}
	}
	return &net.UDPAddr{IP: net.IPv4bcast, Port: clientPort}
}

func (s *Server) Shutdown() {
	if s.Connection != nil {
		s.Connection.Close()
	}
	if s.reaper != nil {
		s.reaper.Stop()
	}
	if s.Leases != nil {
		s.Leases.Close()
	}
}
