package hec

import (
	"net"
	"os"
	"strings"
	"sync"
)

// DefaultSourceType is applied when no sourcetype is configured. It is
// the generic JSON sourcetype Splunk ships with.
const DefaultSourceType = "_json"

// maxCachedSources bounds the metadata cache. Distinct sources are
// normally few; hitting this limit indicates a pathological caller, and
// the cache clears itself entirely rather than evicting.
const maxCachedSources = 1000

// Metadata is the immutable destination tuple attached to every event.
type Metadata struct {
	Index      string
	Source     string
	SourceType string
	Host       string
}

// metadataCache memoizes Metadata tuples keyed by source. A client owns
// one cache; callers must not share a client across goroutines without
// external synchronization (single logical writer, matching the hosting
// framework's target contract).
type metadataCache struct {
	entries map[string]*Metadata
}

// get returns the cached tuple for source, building one on first use.
// The key is the source alone (empty string when unset): on a cache hit
// the index and sourcetype arguments are ignored and the first-seen
// values win. Callers must keep sourcetype/index stable per distinct
// source.
func (c *metadataCache) get(index, source, sourcetype string) *Metadata {
	if c.entries == nil {
		c.entries = make(map[string]*Metadata)
	}
	if m, ok := c.entries[source]; ok {
		return m
	}
	if len(c.entries) >= maxCachedSources {
		c.entries = make(map[string]*Metadata)
	}

	if sourcetype == "" {
		sourcetype = DefaultSourceType
	}
	m := &Metadata{
		Index:      index,
		Source:     source,
		SourceType: sourcetype,
		Host:       ResolvedHostName(),
	}
	c.entries[source] = m
	return m
}

func (c *metadataCache) len() int { return len(c.entries) }

var (
	hostOnce sync.Once
	hostName string
)

// hostLookups is the ordered fallback chain for resolving the machine
// identity once per process. The first non-empty trimmed result wins; a
// lookup error moves on to the next entry.
var hostLookups = []func() (string, error){
	func() (string, error) { return os.Getenv("COMPUTERNAME"), nil },
	func() (string, error) { return os.Getenv("HOSTNAME"), nil },
	os.Hostname,
	dnsSelfLookup,
}

// ResolvedHostName returns the process-wide machine identity, computed
// on first call. If every lookup in the chain fails or returns empty,
// the result is the empty string and events carry no host field.
func ResolvedHostName() string {
	hostOnce.Do(func() {
		hostName = resolveHost(hostLookups)
	})
	return hostName
}

func resolveHost(chain []func() (string, error)) string {
	for _, lookup := range chain {
		name, err := lookup()
		if err != nil {
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return ""
}

// dnsSelfLookup asks DNS for a name matching one of the machine's
// non-loopback addresses. Last resort in the chain.
func dnsSelfLookup() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		names, err := net.LookupAddr(ipnet.IP.String())
		if err != nil || len(names) == 0 {
			continue
		}
		return strings.TrimSuffix(names[0], "."), nil
	}
	return "", nil
}
