// Package netinfo finds the address other machines on the LAN should use to
// reach this server.
package netinfo

import (
	"net"
)

const fallbackIP = "127.0.0.1"

// probeAddr is never contacted. Dialing UDP only asks the kernel which local
// interface would route to it.
const probeAddr = "10.255.255.255:1"

// LocalIP returns the outbound LAN address, or 127.0.0.1 when there is no route.
func LocalIP() string {
	return localIPVia(probeAddr)
}

func localIPVia(addr string) string {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fallbackIP
	}
	defer conn.Close()

	udp, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || udp.IP == nil || udp.IP.IsUnspecified() {
		return fallbackIP
	}
	return udp.IP.String()
}

// Resolve prefers an explicitly advertised address over discovery.
func Resolve(advertise string) string {
	if advertise != "" {
		return advertise
	}
	return LocalIP()
}
