package balancer

import (
	"encoding/binary"
	"net"

	"github.com/cespare/xxhash/v2"
)

// IPKey 将客户端地址编码为 32 位整数
// IPv4 与 IPv4-mapped IPv6 取大端序数值，其他 IPv6 取 xxhash 低 32 位
func IPKey(addr net.Addr) (uint32, bool) {
	var ip net.IP
	switch a := addr.(type) {
	case nil:
		return 0, false
	case *net.TCPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	case *net.IPAddr:
		ip = a.IP
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			host = a.String()
		}
		ip = net.ParseIP(host)
	}
	return ipKey(ip)
}

func ipKey(ip net.IP) (uint32, bool) {
	if ip == nil {
		return 0, false
	}
	if v4 := ip.To4(); v4 != nil {
		return binary.BigEndian.Uint32(v4), true
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return 0, false
	}
	return uint32(xxhash.Sum64(ip16)), true
}
