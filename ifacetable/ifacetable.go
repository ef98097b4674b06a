// Package ifacetable holds the router's configured interfaces: name, MAC
// address, and IPv4 address. It is immutable after construction; there
// is no hot-reload path.
package ifacetable

import (
	"errors"
	"fmt"
	"net/netip"
)

// Interface is one of the router's own network attachment points.
type Interface struct {
	Name string
	HW   [6]byte
	Addr netip.Addr // must be a pure v4 address; New rejects 4-in-6 forms
}

var (
	errDuplicateName = errors.New("ifacetable: duplicate interface name")
	errDuplicateAddr = errors.New("ifacetable: duplicate interface address")
	errNotIPv4       = errors.New("ifacetable: interface address is not IPv4")
)

// Table is a read-only, by-name and by-address index over a fixed set of
// interfaces, built once at startup by [New].
type Table struct {
	byName map[string]Interface
	byAddr map[netip.Addr]Interface
	list   []Interface
}

// New builds a Table from ifaces. It returns an error if two interfaces
// share a name or an address, or if an address is not IPv4.
func New(ifaces []Interface) (*Table, error) {
	t := &Table{
		byName: make(map[string]Interface, len(ifaces)),
		byAddr: make(map[netip.Addr]Interface, len(ifaces)),
		list:   append([]Interface(nil), ifaces...),
	}
	for _, ifc := range ifaces {
		if !ifc.Addr.Is4() {
			return nil, fmt.Errorf("%w: %s", errNotIPv4, ifc.Name)
		}
		if _, exists := t.byName[ifc.Name]; exists {
			return nil, fmt.Errorf("%w: %s", errDuplicateName, ifc.Name)
		}
		if _, exists := t.byAddr[ifc.Addr]; exists {
			return nil, fmt.Errorf("%w: %s", errDuplicateAddr, ifc.Addr)
		}
		t.byName[ifc.Name] = ifc
		t.byAddr[ifc.Addr] = ifc
	}
	return t, nil
}

// ByName looks up an interface by its configured name.
func (t *Table) ByName(name string) (Interface, bool) {
	ifc, ok := t.byName[name]
	return ifc, ok
}

// ByIP looks up an interface by one of the router's own addresses, used
// to decide whether a destination IP is locally owned.
func (t *Table) ByIP(addr netip.Addr) (Interface, bool) {
	ifc, ok := t.byAddr[addr]
	return ifc, ok
}

// List returns all configured interfaces. The returned slice is owned by
// the caller; mutating it does not affect the table.
func (t *Table) List() []Interface {
	return append([]Interface(nil), t.list...)
}
