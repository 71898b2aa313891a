// Package discovery advertises the companion server on the local network so
// companion apps can find it without typing an address.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service the server registers under.
const ServiceType = "_ytmcompanion._tcp"

// IfaceEnv restricts advertisement to a single interface when set.
const IfaceEnv = "YTMC_MDNS_IFACE"

// Metadata is published as TXT records.
type Metadata struct {
	Version      string
	APIPort      int
	RealtimePath string // defaults to /realtime
	Pairing      bool
}

// TXT renders the metadata as key=value records.
func (m Metadata) TXT() []string {
	path := m.RealtimePath
	if path == "" {
		path = "/realtime"
	}
	pairing := "disabled"
	if m.Pairing {
		pairing = "enabled"
	}
	return []string{
		"version=" + m.Version,
		"apiPort=" + strconv.Itoa(m.APIPort),
		"realtime=" + path,
		"pairing=" + pairing,
	}
}

// Config holds configuration for the mDNS advertiser.
type Config struct {
	InstanceName string
	Port         int
	Meta         Metadata
}

// Advertiser manages the mDNS service registration.
type Advertiser struct {
	mu      sync.Mutex
	cfg     Config
	servers []*mdns.Server
}

// NewAdvertiser validates cfg. Nothing is sent until Start.
func NewAdvertiser(cfg Config) (*Advertiser, error) {
	if cfg.InstanceName == "" {
		return nil, fmt.Errorf("instance name is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Meta.APIPort == 0 {
		cfg.Meta.APIPort = cfg.Port
	}
	return &Advertiser{cfg: cfg}, nil
}

// Start begins advertising on every multicast-capable interface.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.start()
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop()
}

// SetPairing republishes the TXT records when the pairing flag changes.
// It is a no-op before Start or when the flag is unchanged.
func (a *Advertiser) SetPairing(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.Meta.Pairing == enabled {
		return nil
	}
	a.cfg.Meta.Pairing = enabled
	if len(a.servers) == 0 {
		return nil
	}
	if err := a.stop(); err != nil {
		slog.Warn("discovery.stop_failed", "error", err)
	}
	return a.start()
}

func (a *Advertiser) start() error {
	service, err := mdns.NewMDNSService(
		a.cfg.InstanceName,
		ServiceType,
		"",
		"",
		a.cfg.Port,
		nil,
		a.cfg.Meta.TXT(),
	)
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}

	filter := strings.TrimSpace(os.Getenv(IfaceEnv))
	var servers []*mdns.Server
	for _, iface := range ifaces {
		iface := iface
		if filter != "" && iface.Name != filter {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		server, err := mdns.NewServer(&mdns.Config{Zone: service, Iface: &iface})
		if err != nil {
			slog.Debug("discovery.iface_skipped", "iface", iface.Name, "error", err)
			continue
		}
		servers = append(servers, server)
	}

	if len(servers) == 0 && filter == "" {
		server, err := mdns.NewServer(&mdns.Config{Zone: service})
		if err != nil {
			return fmt.Errorf("start mdns server: %w", err)
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		return fmt.Errorf("no mdns interfaces bound (filter=%q)", filter)
	}

	a.servers = servers
	slog.Info("discovery.advertising",
		"service", ServiceType,
		"instance", a.cfg.InstanceName,
		"port", a.cfg.Port,
		"interfaces", len(servers),
		"pairing", a.cfg.Meta.Pairing,
	)
	return nil
}

func (a *Advertiser) stop() error {
	var firstErr error
	for _, server := range a.servers {
		if err := server.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.servers = nil
	return firstErr
}
