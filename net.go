package ike

import (
	"net"

	"github.com/pkg/errors"
)

// IPNetToFirstLastAddress returns the first and last addresses of an IPv4
// network (the network and broadcast addresses included), the form a
// traffic selector's StartAddress/EndAddress pair needs.
func IPNetToFirstLastAddress(n *net.IPNet) (first, last net.IP, err error) {
	ip4 := n.IP.To4()
	if ip4 == nil {
		return nil, nil, errors.Errorf("not an ipv4 network: %v", n)
	}
	mask := n.Mask
	first = make(net.IP, 4)
	last = make(net.IP, 4)
	for i := 0; i < 4; i++ {
		first[i] = ip4[i] & mask[i]
		last[i] = ip4[i] | ^mask[i]
	}
	return first, last, nil
}
