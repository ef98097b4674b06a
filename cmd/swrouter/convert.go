package main

import (
	"fmt"
	"net/netip"

	"github.com/netstacklab/swrouter/config"
	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/routetable"
)

func buildIfaceTable(cfg config.Config) (*ifacetable.Table, error) {
	ifaces := make([]ifacetable.Interface, 0, len(cfg.Interfaces))
	for _, in := range cfg.Interfaces {
		addr, err := config.ParseAddr(in.Addr)
		if err != nil {
			return nil, err
		}
		if !addr.Is4() {
			return nil, fmt.Errorf("interface %s: address %s is not IPv4", in.Name, in.Addr)
		}
		hw, err := config.ParseMAC(in.MAC)
		if err != nil {
			return nil, err
		}
		ifaces = append(ifaces, ifacetable.Interface{Name: in.Name, HW: hw, Addr: addr})
	}
	return ifacetable.New(ifaces)
}

func buildRouteTable(cfg config.Config) (*routetable.Table, error) {
	routes := make([]routetable.Route, 0, len(cfg.Routes))
	for _, in := range cfg.Routes {
		dest, err := config.ParseAddr(in.Dest)
		if err != nil {
			return nil, err
		}
		mask, err := config.ParseAddr(in.Mask)
		if err != nil {
			return nil, err
		}
		var gw netip.Addr
		if in.Gateway != "" {
			gw, err = config.ParseAddr(in.Gateway)
			if err != nil {
				return nil, err
			}
		}
		routes = append(routes, routetable.Route{Dest: dest, Mask: mask, Gateway: gw, Iface: in.Iface})
	}
	return routetable.New(routes), nil
}
