package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"leased/internal/config"
	"leased/internal/mgmt"
	"leased/pkg/dhcp"
)

func main() {
	configFile := flag.String("conf", "conf.yaml", "Path to the configuration file")
	flag.Parse()

	if envConfig := os.Getenv("LEASED_CONFIG_PATH"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	server, err := dhcp.InitServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create DHCP server: %v", err)
	}

	if cfg.Management.Enabled {
		api := mgmt.NewAPI(server.Leases, server.Active)
		if err := mgmt.StartServer(cfg.Management.ListenAddress, api); err != nil {
			log.Fatalf("Failed to start management API: %v", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("DHCP server failed: %v", err)
		}
	case <-sigCh:
		server.Shutdown()
		<-errCh
	}
}
