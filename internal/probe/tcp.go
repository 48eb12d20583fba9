package probe

import (
	"context"
	"fmt"
	"net"
)

type tcpProber struct {
	address string
	dialer  func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewTCP returns a prober that succeeds once address accepts a TCP connection.
func NewTCP(address string) Prober {
	return &tcpProber{
		address: address,
		dialer:  (&net.Dialer{}).DialContext,
	}
}

func (p *tcpProber) Probe(ctx context.Context) error {
	conn, err := p.dialer(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.address, err)
	}
	return conn.Close()
}

// DialAddress maps a bind address to one a local client can reach. Wildcard
// hosts are dialled on loopback.
func DialAddress(host string, port int) string {
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::", "[::]":
		host = "::1"
	}
	return net.JoinHostPort(host, fmt.Sprint(port))
}
