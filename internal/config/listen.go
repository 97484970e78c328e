package config

import (
	"fmt"
	"net"

	"KoordeDHT/internal/domain"
)

// pickIP selects a suitable IPv4 address from the local interfaces
// according to mode ("private" or "public"): only interfaces that are up
// and non-loopback are considered, and the first matching address wins.
func pickIP(mode string) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			ip = ip.To4()
			if ip == nil {
				continue
			}
			if mode == "private" && isPrivateIP(ip) {
				return ip, nil
			}
			if mode == "public" && !isPrivateIP(ip) {
				return ip, nil
			}
		}
	}
	return nil, fmt.Errorf("no suitable %s interface found", mode)
}

// isPrivateIP reports whether ip falls in an RFC1918 private range.
func isPrivateIP(ip net.IP) bool {
	for _, block := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, cidr, _ := net.ParseCIDR(block)
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Listen opens a TCP listener on bind:port and resolves the address this
// node should advertise to peers: host if it is set and parses as an IP
// (validated against mode), otherwise the first local interface matching
// mode. A host that is not an IP literal is ignored.
func Listen(mode, bind, host string, port int) (ln net.Listener, advertisedIPv4 uint32, advertisedPort uint16, err error) {
	if bind == "" {
		bind = "0.0.0.0"
	}
	ln, err = net.Listen("tcp4", fmt.Sprintf("%s:%d", bind, port))
	if err != nil {
		return nil, 0, 0, err
	}
	actualPort := uint16(ln.Addr().(*net.TCPAddr).Port)

	var advertiseIP net.IP
	if host != "" {
		if ip := net.ParseIP(host); ip != nil {
			if mode == "private" && !isPrivateIP(ip) {
				ln.Close()
				return nil, 0, 0, fmt.Errorf("host %s is not private but mode=private", host)
			}
			if mode == "public" && isPrivateIP(ip) {
				ln.Close()
				return nil, 0, 0, fmt.Errorf("host %s is private but mode=public", host)
			}
			advertiseIP = ip.To4()
		}
	}
	if advertiseIP == nil {
		advertiseIP, err = pickIP(mode)
		if err != nil {
			ln.Close()
			return nil, 0, 0, err
		}
	}

	ipv4, err := domain.IPv4FromString(advertiseIP.String())
	if err != nil {
		ln.Close()
		return nil, 0, 0, err
	}
	return ln, ipv4, actualPort, nil
}
