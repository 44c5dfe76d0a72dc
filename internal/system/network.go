package system

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Well-known share service ports
const (
	PortSMB = 445
	PortNFS = 2049
)

// Network handles network operations
type Network struct {
	timeout time.Duration
}

// NewNetwork creates a new Network instance
func NewNetwork(timeout time.Duration) *Network {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Network{timeout: timeout}
}

// IsPortOpen checks if a TCP port is open on a host. Refused or timed out
// connections are reported as closed, not as errors.
func (n *Network) IsPortOpen(ctx context.Context, host string, port int) bool {
	dialer := net.Dialer{Timeout: n.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ResolveDNS resolves a hostname to IP addresses. Literal addresses are
// returned as-is.
func (n *Network) ResolveDNS(ctx context.Context, hostname string) ([]string, error) {
	if ip := net.ParseIP(hostname); ip != nil {
		return []string{ip.String()}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", hostname, err)
	}
	return addrs, nil
}

// Reachability is the outcome of probing a share server
type Reachability struct {
	Host      string
	Port      int
	Addresses []string
	Resolved  bool
	PortOpen  bool
	Err       error
}

// Probe resolves host and checks that port accepts connections
func (n *Network) Probe(ctx context.Context, host string, port int) Reachability {
	r := Reachability{Host: host, Port: port}

	addrs, err := n.ResolveDNS(ctx, host)
	if err != nil {
		r.Err = err
		return r
	}
	r.Addresses = addrs
	r.Resolved = true
	r.PortOpen = n.IsPortOpen(ctx, host, port)
	return r
}
