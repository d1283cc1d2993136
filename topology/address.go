package topology

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/netsim/network"
)

// An AddressHelper hands out consecutive IPv4 host addresses from a subnet.
// Consecutive calls to Assign continue the numbering until the base is
// changed.
type AddressHelper struct {
	prefix netip.Prefix
	next   netip.Addr
}

// SetBase sets the subnet to allocate from, in CIDR notation, for example
// "10.1.1.0/24". The first address handed out is the first host of the
// subnet.
func (h *AddressHelper) SetBase(cidr string) error {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return err
	}

	if !prefix.Addr().Is4() {
		return fmt.Errorf("subnet %s is not an IPv4 subnet", cidr)
	}

	if prefix.Bits() > 30 {
		return fmt.Errorf("subnet %s has no room for hosts", cidr)
	}

	h.prefix = prefix.Masked()
	h.next = h.prefix.Addr().Next()

	return nil
}

// Base returns the current subnet.
func (h *AddressHelper) Base() netip.Prefix {
	return h.prefix
}

// NewNetwork moves the base to the next subnet of the same size.
func (h *AddressHelper) NewNetwork() error {
	if !h.prefix.IsValid() {
		return fmt.Errorf("address base is not set")
	}

	hostBits := 32 - h.prefix.Bits()
	base := h.prefix.Addr().As4()
	n := uint32(base[0])<<24 | uint32(base[1])<<16 |
		uint32(base[2])<<8 | uint32(base[3])

	next4 := n + 1<<hostBits
	if next4 < n {
		return fmt.Errorf("no subnet after %s", h.prefix)
	}

	next := netip.AddrFrom4([4]byte{
		byte(next4 >> 24), byte(next4 >> 16), byte(next4 >> 8), byte(next4),
	})

	return h.SetBase(netip.PrefixFrom(next, h.prefix.Bits()).String())
}

// Allocate returns the next host address of the subnet.
func (h *AddressHelper) Allocate() (netip.Addr, error) {
	if !h.prefix.IsValid() {
		return netip.Addr{}, fmt.Errorf("address base is not set")
	}

	addr := h.next
	if !h.prefix.Contains(addr) || isBroadcast(h.prefix, addr) {
		return netip.Addr{}, fmt.Errorf("subnet %s is exhausted", h.prefix)
	}

	h.next = addr.Next()

	return addr, nil
}

// Assign gives each device the next host address of the subnet, in order.
func (h *AddressHelper) Assign(
	devices ...*network.Device,
) ([]netip.Addr, error) {
	addrs := make([]netip.Addr, 0, len(devices))

	for _, d := range devices {
		addr, err := h.Allocate()
		if err != nil {
			return nil, err
		}

		d.SetAddress(addr)
		addrs = append(addrs, addr)
	}

	return addrs, nil
}

func isBroadcast(prefix netip.Prefix, addr netip.Addr) bool {
	next := addr.Next()
	return !next.IsValid() || !prefix.Contains(next)
}
