package targets

import (
	"iter"
	"net/netip"
)

const (
	// Prefixes this long or longer have no network/broadcast addresses to skip.
	ipv4PointToPointBits = 31
	ipv6PointToPointBits = 127
)

// Hosts lazily yields the usable host addresses of prefix.
//
// Host bits in prefix are ignored. For IPv4 the network and broadcast
// addresses are skipped except in /31 and /32 blocks. For IPv6 the
// subnet-router anycast address (the network address) is skipped except in
// /127 and /128 blocks.
func Hosts(prefix netip.Prefix) iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		if !prefix.IsValid() {
			return
		}
		prefix = prefix.Masked()

		first := prefix.Addr()
		last := lastAddr(prefix)

		if first.Is4() {
			if prefix.Bits() < ipv4PointToPointBits {
				first = first.Next()
				last = last.Prev()
			}
		} else if prefix.Bits() < ipv6PointToPointBits {
			first = first.Next()
		}

		for addr := first; addr.IsValid() && addr.Compare(last) <= 0; addr = addr.Next() {
			if !yield(addr) {
				return
			}
			if addr == last {
				return
			}
		}
	}
}

// HostCount returns the number of addresses Hosts yields for prefix,
// saturating at the maximum uint64.
func HostCount(prefix netip.Prefix) uint64 {
	if !prefix.IsValid() {
		return 0
	}
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if hostBits >= 64 {
		return ^uint64(0)
	}
	total := uint64(1) << hostBits

	if prefix.Addr().Is4() {
		if prefix.Bits() < ipv4PointToPointBits {
			return total - 2
		}
		return total
	}
	if prefix.Bits() < ipv6PointToPointBits {
		return total - 1
	}
	return total
}

// lastAddr returns the highest address inside prefix.
func lastAddr(prefix netip.Prefix) netip.Addr {
	bytes := prefix.Addr().AsSlice()
	ones := prefix.Bits()
	for i := range bytes {
		for bit := 0; bit < 8; bit++ {
			if i*8+bit >= ones {
				bytes[i] |= 0x80 >> bit
			}
		}
	}
	addr, _ := netip.AddrFromSlice(bytes)
	return addr
}
