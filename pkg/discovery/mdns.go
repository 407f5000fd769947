package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/brutella/dnssd"
)

// Announce publishes the update host on the LAN until ctx is cancelled.
// Cancellation is the normal way to stop announcing and is not an error.
func Announce(ctx context.Context, info ServiceInfo) error {
	if info.Type == "" {
		info.Type = ServiceType
	}
	if info.Domain == "" {
		info.Domain = Domain
	}

	cfg := dnssd.Config{
		Name:   info.Name,
		Type:   info.Type,
		Domain: info.Domain,
		// mDNS multicasts to the link-local group, so IPs can stay nil.
		IPs:  nil,
		Text: map[string]string{"desc": "Firmware update host"},
		Port: info.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	if err = rp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mDNS responder failed: %w", err)
	}

	slog.Info("Stopped mDNS announcement", "instance", info.Name)
	return nil
}

// Lookup browses for update hosts and returns the first one whose instance
// name matches. An empty name matches any host. The caller bounds the wait
// with ctx, typically context.WithTimeout.
func Lookup(ctx context.Context, name string) (ServiceInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan ServiceInfo, 1)

	addFn := func(e dnssd.BrowseEntry) {
		if name != "" && e.Name != name {
			return
		}
		if len(e.IPs) == 0 {
			return
		}
		select {
		case found <- ServiceInfo{
			Name:   e.Name,
			Type:   e.Type,
			Domain: e.Domain,
			Addr:   e.IPs[0],
			Port:   e.Port,
		}:
		default:
		}
	}
	rmvFn := func(dnssd.BrowseEntry) {}

	errCh := make(chan error, 1)
	go func() {
		errCh <- dnssd.LookupType(ctx, fmt.Sprintf("%s.%s.", ServiceType, Domain), addFn, rmvFn)
	}()

	select {
	case info := <-found:
		return info, nil
	case <-ctx.Done():
		return ServiceInfo{}, fmt.Errorf("no update host found: %w", ctx.Err())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return ServiceInfo{}, fmt.Errorf("mDNS lookup failed: %w", err)
		}
		return ServiceInfo{}, errors.New("no update host found")
	}
}

func fmtPort(p int) string {
	return strconv.Itoa(p)
}
