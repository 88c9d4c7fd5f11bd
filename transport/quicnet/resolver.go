package quicnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var errNoAddress = errors.New("quicnet: hostname has no address")

type lookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// resolver caches hostname lookups; IP literals bypass the cache.
type resolver struct {
	cache  *expirable.LRU[string, net.IP]
	lookup lookupFunc
}

func newResolver(size int, ttl time.Duration, lookup lookupFunc) *resolver {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIPAddr
	}
	return &resolver{
		cache:  expirable.NewLRU[string, net.IP](size, nil, ttl),
		lookup: lookup,
	}
}

// resolve prefers IPv4 answers so host addresses stay dotted quads.
func (r *resolver) resolve(ctx context.Context, hostname string) (net.IP, error) {
	if hostname == "" {
		return nil, fmt.Errorf("%w: empty hostname", errNoAddress)
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return ip, nil
	}
	if ip, ok := r.cache.Get(hostname); ok {
		return ip, nil
	}

	addrs, err := r.lookup(ctx, hostname)
	if err != nil {
		return nil, fmt.Errorf("quicnet: resolve %s: %w", hostname, err)
	}
	var pick net.IP
	for _, a := range addrs {
		if a.IP.To4() != nil {
			pick = a.IP
			break
		}
		if pick == nil {
			pick = a.IP
		}
	}
	if pick == nil {
		return nil, fmt.Errorf("%w: %s", errNoAddress, hostname)
	}
	r.cache.Add(hostname, pick)
	return pick, nil
}
