package discovery

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/hashicorp/mdns"
)

// DefaultService is the DNS-SD service type for Web Things.
const DefaultService = "_webthing._tcp"

var (
	// ErrMissingInstance is returned when no instance name is given.
	ErrMissingInstance = errors.New("discovery: instance name is required")

	// ErrInvalidPort is returned for ports outside 1-65535.
	ErrInvalidPort = errors.New("discovery: invalid port")
)

// Options describes the advertised service.
type Options struct {
	// Instance is the human-readable service name, usually the Thing title
	// or gateway name.
	Instance string

	// Service defaults to DefaultService.
	Service string

	// Port is the API listen port.
	Port int

	// TLS adds "tls=1" to the TXT record.
	TLS bool

	// HostName and IPs override the local host lookup. Both are optional.
	HostName string
	IPs      []net.IP
}

// Advertiser owns a running mDNS responder.
type Advertiser struct {
	server   *mdns.Server
	service  *mdns.MDNSService
	stopOnce sync.Once
}

// TXTRecords returns the TXT entries for opts.
func TXTRecords(opts Options) []string {
	txt := []string{"path=/"}
	if opts.TLS {
		txt = append(txt, "tls=1")
	}
	return txt
}

// NewService builds the mDNS zone for opts without starting a responder.
func NewService(opts Options) (*mdns.MDNSService, error) {
	if opts.Instance == "" {
		return nil, ErrMissingInstance
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, opts.Port)
	}
	service := opts.Service
	if service == "" {
		service = DefaultService
	}

	svc, err := mdns.NewMDNSService(opts.Instance, service, "", opts.HostName, opts.Port, opts.IPs, TXTRecords(opts))
	if err != nil {
		return nil, fmt.Errorf("building mdns service: %w", err)
	}
	return svc, nil
}

// Start publishes the service and answers queries until Stop.
//
// Parameters:
//   - opts: Service description; Instance and Port are required
//
// Returns:
//   - *Advertiser: Running responder
//   - error: Validation error, or failure to bind the multicast sockets
func Start(opts Options) (*Advertiser, error) {
	svc, err := NewService(opts)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("starting mdns server: %w", err)
	}
	return &Advertiser{server: server, service: svc}, nil
}

// Service returns the advertised zone.
func (a *Advertiser) Service() *mdns.MDNSService {
	return a.service
}

// Stop withdraws the advertisement. It is safe to call more than once and
// on a nil Advertiser.
func (a *Advertiser) Stop() error {
	if a == nil {
		return nil
	}
	var err error
	a.stopOnce.Do(func() {
		err = a.server.Shutdown()
	})
	return err
}
