//go:build !linux

package main

import (
	"fmt"

	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/linklayer"
)

// openInterfaces is unavailable outside Linux: AF_PACKET raw sockets are
// a Linux-only facility. Non-Linux builds must run with --sim.
func openInterfaces(ifaces *ifacetable.Table) (linklayer.Multi, map[string]linklayer.Receiver, func(), error) {
	return nil, nil, nil, fmt.Errorf("raw sockets require linux; run with --sim on this platform")
}
