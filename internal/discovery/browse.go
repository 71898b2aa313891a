package discovery

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// Instance is one server found on the network.
type Instance struct {
	Name string
	Host string
	Addr net.IP
	Port int
	TXT  map[string]string
}

// Browse queries the local network for companion servers for up to timeout.
func Browse(timeout time.Duration) ([]Instance, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	var found []Instance
	go func() {
		defer close(done)
		for e := range entries {
			if !strings.Contains(e.Name, ServiceType) {
				continue
			}
			found = append(found, instanceFrom(e))
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	<-done
	if err != nil {
		return found, fmt.Errorf("mdns query: %w", err)
	}
	return found, nil
}

func instanceFrom(e *mdns.ServiceEntry) Instance {
	addr := e.AddrV4
	if addr == nil {
		addr = e.AddrV6
	}
	return Instance{
		Name: e.Name,
		Host: e.Host,
		Addr: addr,
		Port: e.Port,
		TXT:  ParseTXT(e.InfoFields),
	}
}

// ParseTXT splits key=value records. Records without '=' map to "".
func ParseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
