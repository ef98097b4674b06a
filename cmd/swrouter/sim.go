package main

import (
	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/linklayer"
	"github.com/netstacklab/swrouter/linklayer/pipe"
)

// openSimInterfaces attaches each configured interface to one end of an
// in-memory pipe; the other end is read and discarded, standing in for
// an unplugged cable. It lets --sim exercise the full dispatcher without
// root privileges or a real NIC.
func openSimInterfaces(ifaces *ifacetable.Table) (linklayer.Multi, map[string]linklayer.Receiver, func(), error) {
	tx := make(linklayer.Multi, len(ifaces.List()))
	rx := make(map[string]linklayer.Receiver, len(ifaces.List()))
	var pipes []*pipe.Pipe

	for _, ifc := range ifaces.List() {
		local, peer := pipe.New(ifc.Name, ifc.Name+".peer")
		pipes = append(pipes, local, peer)
		tx[ifc.Name] = local
		rx[ifc.Name] = local
		go peer.ReadLoop(func(string, []byte) {})
	}

	closeAll := func() {
		for _, p := range pipes {
			p.Close()
		}
	}
	return tx, rx, closeAll, nil
}
