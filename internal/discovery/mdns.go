package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
)

const (
	// ServiceType is the mDNS service type scenebridge advertises
	ServiceType = "_scenebridge._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout is the default browse duration
	DefaultScanTimeout = 3 * time.Second

	txtVersion  = "version"
	txtFeatures = "features"
)

// TXT builds the TXT records advertised for a server.
func TXT(version string, features []string) []string {
	sorted := append([]string(nil), features...)
	sort.Strings(sorted)
	return []string{
		txtVersion + "=" + version,
		txtFeatures + "=" + strings.Join(sorted, ","),
	}
}

// Advertiser publishes the command server over mDNS
type Advertiser struct {
	server *zeroconf.Server
	mu     sync.Mutex
}

// Advertise registers instance on port with the given TXT records on all
// multicast interfaces. Call Shutdown to withdraw it.
func Advertise(instance string, port int, txt []string) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertiser{server: server}, nil
}

// SetText replaces the advertised TXT records.
func (a *Advertiser) SetText(txt []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.SetText(txt)
	}
}

// Shutdown withdraws the advertisement. It is safe to call more than once.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Scanner browses for scenebridge servers
type Scanner struct {
	// Timeout is the maximum time to browse
	Timeout time.Duration
}

// NewScanner creates a scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan returns every instance that answers before the timeout
func (s *Scanner) Scan(ctx context.Context) ([]*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var found []*Instance
	err := s.browse(ctx, func(inst *Instance) bool {
		found = append(found, inst)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// Find waits for the instance called name
func (s *Scanner) Find(ctx context.Context, name string) (*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var match *Instance
	err := s.browse(ctx, func(inst *Instance) bool {
		if inst.Name == name {
			match = inst
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("scenebridge instance %q not found within %s", name, s.Timeout)
	}
	return match, nil
}

// browse feeds parsed entries to visit until it returns false or ctx ends.
// visit is never called concurrently and never after browse returns.
func (s *Scanner) browse(ctx context.Context, visit func(*Instance) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for entry := range entries {
			inst := parseEntry(entry)
			if inst == nil || seen[inst.Name] {
				continue
			}
			seen[inst.Name] = true
			if !visit(inst) {
				cancel()
				break
			}
		}
		// keep receiving until the resolver closes the channel
		for range entries {
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return nil
}

// parseEntry converts a service entry to an Instance. Entries without a
// usable address are dropped.
func parseEntry(entry *zeroconf.ServiceEntry) *Instance {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	var features []string
	if raw := metadata[txtFeatures]; raw != "" {
		features = strings.Split(raw, ",")
	}

	return &Instance{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Version:      metadata[txtVersion],
		Features:     features,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
