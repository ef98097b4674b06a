//go:build linux

package main

import (
	"fmt"

	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/linklayer"
	"github.com/netstacklab/swrouter/linklayer/rawsock"
)

// openInterfaces binds one AF_PACKET socket per configured interface. It
// is the production link layer; --sim bypasses it entirely.
func openInterfaces(ifaces *ifacetable.Table) (linklayer.Multi, map[string]linklayer.Receiver, func(), error) {
	tx := make(linklayer.Multi, len(ifaces.List()))
	rx := make(map[string]linklayer.Receiver, len(ifaces.List()))
	var sockets []*rawsock.Socket

	closeAll := func() {
		for _, s := range sockets {
			s.Close()
		}
	}

	for _, ifc := range ifaces.List() {
		sock, err := rawsock.Open(ifc.Name)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("opening raw socket on %s: %w", ifc.Name, err)
		}
		sockets = append(sockets, sock)
		tx[ifc.Name] = sock
		rx[ifc.Name] = sock
	}
	return tx, rx, closeAll, nil
}
