package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface specifies which network interface to browse on.
	// Empty string means all interfaces.
	Interface string
}

// Browser searches the local network for Arbor devices.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Browse collects every Arbor device visible within the timeout.
// Results are aggregated by instance name, with addresses merged across
// interfaces, and returned sorted by instance name. A zero timeout uses
// DefaultBrowseTimeout.
func (b *Browser) Browse(ctx context.Context, timeout time.Duration) ([]Found, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries, removed := b.resolve(ctx)
	services := collect(ctx, entries, removed)

	list := make([]Found, 0, len(services))
	for _, f := range services {
		list = append(list, *f)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Instance < list[j].Instance })

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return list, err
	}
	return list, nil
}

// Watch streams Arbor devices as they appear, until ctx is done. Each
// instance is emitted once, on first sighting; address merges from
// other interfaces are not re-emitted. The channel closes when browsing
// ends.
func (b *Browser) Watch(ctx context.Context) <-chan Found {
	out := make(chan Found)
	entries, removed := b.resolve(ctx)
	go aggregate(ctx, entries, removed, out)
	return out
}

// Find waits for a device with the given ID to appear. It returns
// ErrNotFound when the timeout elapses first. A zero timeout uses
// DefaultBrowseTimeout.
func (b *Browser) Find(ctx context.Context, deviceID string, timeout time.Duration) (*Found, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := b.Watch(ctx)
	for {
		select {
		case f, ok := <-results:
			if !ok {
				return nil, ErrNotFound
			}
			if f.DeviceID == deviceID {
				return &f, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrNotFound
			}
			return nil, ctx.Err()
		}
	}
}

// resolve starts a zeroconf browse and returns channels of
// library-neutral entries for added and removed services.
func (b *Browser) resolve(ctx context.Context) (entries, removed <-chan *ServiceEntry) {
	raw := make(chan *zeroconf.ServiceEntry)
	rawRemoved := make(chan *zeroconf.ServiceEntry)
	added := make(chan *ServiceEntry)
	gone := make(chan *ServiceEntry)

	go convertEntries(ctx, raw, added)
	go convertEntries(ctx, rawRemoved, gone)
	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, raw, rawRemoved, b.options()...)
	}()

	return added, gone
}

// options returns zeroconf client options based on config.
func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// convertEntries pumps resolver entries into their library-neutral
// form. It closes out when in closes.
func convertEntries(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- *ServiceEntry) {
	defer close(out)

	for {
		select {
		case entry, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- toServiceEntry(entry):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// toServiceEntry converts a zeroconf entry to the library-neutral form,
// collecting IPv4 addresses before IPv6.
func toServiceEntry(entry *zeroconf.ServiceEntry) *ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// aggregate folds entries into the out channel, emitting each instance
// once on first sighting.
func aggregate(ctx context.Context, entries, removed <-chan *ServiceEntry, out chan<- Found) {
	defer close(out)

	services := make(serviceSet)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return
			}
			f, fresh := services.add(e)
			if !fresh {
				continue
			}
			select {
			case out <- *f:
			case <-ctx.Done():
				return
			}

		case e, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			services.remove(e)

		case <-ctx.Done():
			return
		}
	}
}

// collect folds entries into a set until ctx is done, keeping the fully
// merged address lists.
func collect(ctx context.Context, entries, removed <-chan *ServiceEntry) serviceSet {
	services := make(serviceSet)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return services
			}
			services.add(e)

		case e, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			services.remove(e)

		case <-ctx.Done():
			return services
		}
	}
}

// serviceSet tracks discovered services by instance name, merging
// addresses seen on different interfaces.
type serviceSet map[string]*Found

// add folds an entry into the set. The second return is true when the
// entry introduced a new instance. Entries that fail TXT parsing are
// ignored.
func (s serviceSet) add(e *ServiceEntry) (*Found, bool) {
	f, err := e.ToFound()
	if err != nil {
		return nil, false
	}

	existing, seen := s[f.Instance]
	if seen {
		existing.Addrs = mergeAddrs(existing.Addrs, f.Addrs)
		return existing, false
	}

	s[f.Instance] = f
	return f, true
}

// remove drops the entry's addresses. An instance with no addresses
// left disappears from the set.
func (s serviceSet) remove(e *ServiceEntry) {
	existing, seen := s[e.Instance]
	if !seen {
		return
	}

	existing.Addrs = dropAddrs(existing.Addrs, e.Addrs)
	if len(existing.Addrs) == 0 {
		delete(s, e.Instance)
	}
}

// mergeAddrs appends addresses not already present.
func mergeAddrs(existing, update []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range update {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// dropAddrs removes the given addresses from the list.
func dropAddrs(addrs, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}

	kept := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if !drop[addr] {
			kept = append(kept, addr)
		}
	}
	return kept
}
