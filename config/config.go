// Package config loads the router's static interface and route list from
// a YAML document at startup. Configuration is immutable after Load;
// there is no hot-reload path.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"
)

// Interface is the on-disk description of one of the router's own
// attachment points.
type Interface struct {
	Name string `yaml:"name"`
	MAC  string `yaml:"mac"`
	Addr string `yaml:"addr"`
}

// Route is the on-disk description of one static forwarding entry. An
// empty Gateway means directly connected.
type Route struct {
	Dest    string `yaml:"dest"`
	Mask    string `yaml:"mask"`
	Gateway string `yaml:"gateway"`
	Iface   string `yaml:"iface"`
}

// Config is the parsed, still-stringly-typed configuration document.
// Callers convert it into ifacetable.Interface / routetable.Route
// values, parsing the address strings at that point, to keep this
// package free of a dependency on either table package.
type Config struct {
	Interfaces []Interface `yaml:"interfaces"`
	Routes     []Route     `yaml:"routes"`
}

// Load reads and parses the YAML document at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ParseAddr is a small helper wrapping netip.ParseAddr with a config-path
// appropriate error, used by cmd/swrouter when building the tables.
func ParseAddr(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("config: invalid address %q: %w", s, err)
	}
	return addr, nil
}

// ParseMAC parses a colon-separated hardware address into a fixed-size
// array, the shape ifacetable.Interface expects.
func ParseMAC(s string) ([6]byte, error) {
	var hw [6]byte
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&hw[0], &hw[1], &hw[2], &hw[3], &hw[4], &hw[5])
	if err != nil || n != 6 {
		return hw, fmt.Errorf("config: invalid MAC address %q", s)
	}
	return hw, nil
}
