package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/starscheduler/starscheduler/internal/model"
)

const datagramMulticastTTL = 2

// DatagramDriver sends a single fire-and-forget UDP envelope and
// returns immediately; absence of a reply is not an error
// (spec.md §4.1).
type DatagramDriver struct{}

// NewDatagramDriver constructs a DatagramDriver.
func NewDatagramDriver() *DatagramDriver {
	return &DatagramDriver{}
}

// Execute writes `<MSG><Exec workRequest="command" /></MSG>` to the
// client's hostname:port over UDP with multicast TTL 2, then closes
// the socket. command is the caller-assembled workRequest body
// (spec.md §6's wire format); no reply is read.
func (d *DatagramDriver) Execute(ctx context.Context, cl model.Client, command string, timeout time.Duration) (string, string, error) {
	checkDangerous(command)

	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return "", "", fmt.Errorf("datagram: listen: %w", err)
	}
	defer pc.Close()

	p := ipv4.NewPacketConn(pc)
	if err := p.SetMulticastTTL(datagramMulticastTTL); err != nil {
		return "", "", fmt.Errorf("datagram: set multicast ttl: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cl.Hostname, cl.Port))
	if err != nil {
		return "", "", fmt.Errorf("datagram: resolve %s:%d: %w", cl.Hostname, cl.Port, err)
	}

	envelope := fmt.Sprintf(`<MSG><Exec workRequest="%s" /></MSG>`, command)
	if _, err := pc.WriteTo([]byte(envelope), addr); err != nil {
		return "", "", fmt.Errorf("datagram: write to %s: %w", addr, err)
	}
	return "sent", "", nil
}
