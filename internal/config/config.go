package config

import (
	"fmt"
	"os"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v2"
)

type Reservation struct {
	MAC      string `yaml:"mac"`
	IP       string `yaml:"ip"`
	Hostname string `yaml:"hostname"`
}

type Config struct {
	Server struct {
		IPStart                string   `yaml:"ip_start"`
		IPEnd                  string   `yaml:"ip_end"`
		SubnetMask             string   `yaml:"subnet_mask"`
		LeaseTime              int      `yaml:"lease_time" default:"3600"`
		OfferTimeout           int      `yaml:"offer_timeout" default:"60"`
		Gateway                string   `yaml:"gateway"`
		ServerIP               string   `yaml:"server_ip"`
		DNSServers             []string `yaml:"dns_servers"`
		Interface              string   `yaml:"interface"`
		Port                   int      `yaml:"port" default:"67"`
		ClientPort             int      `yaml:"client_port" default:"68"`
		CleanupExpiredInterval int      `yaml:"cleanup_expired_interval" default:"30"`
		ARPCheck               bool     `yaml:"arp_check" default:"true"`
	} `yaml:"server"`
	Reservations []Reservation `yaml:"reservations"`
	Management   struct {
		Enabled       bool   `yaml:"enabled" default:"true"`
		ListenAddress string `yaml:"listen_address" default:":8067"`
	} `yaml:"management"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"text"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled       bool   `yaml:"enabled" default:"true"`
		ListenAddress string `yaml:"listen_address" default:":9100"`
	} `yaml:"metrics"`
	Database struct {
		Type string `yaml:"type" default:"bolt"`
		Bolt struct {
			Path string `yaml:"path"`
		} `yaml:"bolt"`
		Sqlite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Redis struct {
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db" default:"0"`
		} `yaml:"redis"`
	} `yaml:"database"`
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %v", err)
	}

	cfg := &Config{}
	defaults.SetDefaults(cfg)
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration YAML: %v", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.IPStart == "" || c.Server.IPEnd == "" {
		return fmt.Errorf("server.ip_start and server.ip_end are required")
	}
	if c.Server.OfferTimeout >= c.Server.LeaseTime {
		return fmt.Errorf("offer_timeout (%d) must be shorter than lease_time (%d)",
			c.Server.OfferTimeout, c.Server.LeaseTime)
	}
	return nil
}
