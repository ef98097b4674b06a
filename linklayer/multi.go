package linklayer

import "fmt"

// Multi fans SendFrame calls out across one Transmitter per interface
// name, letting the dispatcher address any configured interface through
// a single Transmitter value while the link layer underneath is actually
// one raw socket (or simulated pipe) per NIC.
type Multi map[string]Transmitter

// SendFrame dispatches to the Transmitter registered under iface.
func (m Multi) SendFrame(iface string, b []byte) error {
	t, ok := m[iface]
	if !ok {
		return fmt.Errorf("linklayer: no transmitter registered for interface %q", iface)
	}
	return t.SendFrame(iface, b)
}
