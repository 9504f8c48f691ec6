// Package network provides proxy-aware dialing for the transports.
package network

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/proxy"

	"telemetryagent/internal/config"
)

// NewSOCKS5Dialer creates a SOCKS5 proxy dialer.
func NewSOCKS5Dialer(host string, port int) (proxy.Dialer, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", addr, err)
	}
	return dialer, nil
}

// Enabled reports whether cfg names a usable proxy.
func Enabled(cfg config.SOCKSConfig) bool {
	return cfg.Host != "" && cfg.Port > 0
}

// DialContextFunc returns a dial function routed through the SOCKS5 proxy in
// cfg, or nil when no proxy is configured.
func DialContextFunc(cfg config.SOCKSConfig) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if !Enabled(cfg) {
		return nil, nil
	}
	dialer, err := NewSOCKS5Dialer(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}
