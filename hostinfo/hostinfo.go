// Package hostinfo inspects the local machine's network identity:
// hostname, primary address and a classified interface listing.
package hostinfo

import (
	"net"
	"os"
	"strings"

	gopsnet "github.com/shirou/gopsutil/net"
)

// Interface is one local address with a human-oriented network label.
type Interface struct {
	Name    string
	Address string
	Label   string
}

type Info struct {
	Hostname   string
	PrimaryIP  string
	Interfaces []Interface
}

// Collect gathers the machine information. Interface enumeration
// failures are returned; a failed hostname lookup only leaves
// PrimaryIP empty.
func Collect() (Info, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Info{}, err
	}

	info := Info{Hostname: hostname}
	if addrs, err := net.LookupHost(hostname); err == nil && len(addrs) > 0 {
		info.PrimaryIP = addrs[0]
	}

	stats, err := gopsnet.Interfaces()
	if err != nil {
		return Info{}, err
	}
	for _, stat := range stats {
		for _, addr := range stat.Addrs {
			ip := addr.Addr
			if i := strings.Index(ip, "/"); i >= 0 {
				ip = ip[:i]
			}
			info.Interfaces = append(info.Interfaces, Interface{
				Name:    stat.Name,
				Address: ip,
				Label:   Classify(ip),
			})
		}
	}
	return info, nil
}

// Classify names the network a local address most likely belongs to.
func Classify(ip string) string {
	switch {
	case strings.HasPrefix(ip, "192.168."):
		return "Wi-Fi / LAN"
	case strings.HasPrefix(ip, "10."):
		return "VPN"
	case strings.HasPrefix(ip, "127."):
		return "Localhost"
	case strings.HasPrefix(ip, "172."):
		return "Docker or internal network"
	case strings.Contains(ip, ":"):
		return "IPv6 interface"
	default:
		return "Unknown interface"
	}
}
