package stunutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"

	"github.com/Atharv714/Safe-Passage/internal/addrutil"
)

// ErrNoServers is returned when discovery is attempted without STUN servers.
var ErrNoServers = errors.New("no STUN servers configured")

// Result is the answer of the STUN server that responded first.
type Result struct {
	Server string        // stun: URI that answered
	Mapped string        // host:port of the STUN socket as seen from outside
	RTT    time.Duration // request to response
}

// Host is the public IP without the STUN socket's port.
func (r Result) Host() string {
	return addrutil.HostFromAddr(r.Mapped)
}

// Discover asks each STUN server in turn for this host's mapped address and
// returns the first answer. Phones on mobile data reach the ingest API through
// that IP when the HTTP port is forwarded.
func Discover(ctx context.Context, servers []string, timeout time.Duration) (Result, error) {
	if len(servers) == 0 {
		return Result{}, ErrNoServers
	}

	var errs []error
	for _, server := range servers {
		res, err := query(ctx, server, timeout)
		if err == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("stun %s: %w", server, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, errors.Join(errs...)
}

// Endpoint joins the public host with the port of the HTTP listen address,
// giving the host:port phones should post to. listen without a port yields
// the bare host.
func Endpoint(host, listen string) string {
	if host == "" {
		return ""
	}
	_, port, err := net.SplitHostPort(listen)
	if err != nil || port == "" || port == "0" {
		return host
	}
	return net.JoinHostPort(host, port)
}

// NormalizeURI turns "host:port" into a stun: URI.
func NormalizeURI(server string) (string, error) {
	uri := strings.TrimSpace(server)
	if uri == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uri, "stun:") && !strings.HasPrefix(uri, "stuns:") {
		uri = "stun:" + uri
	}
	return uri, nil
}

type answer struct {
	mapped string
	err    error
}

func query(ctx context.Context, server string, timeout time.Duration) (Result, error) {
	raw, err := NormalizeURI(server)
	if err != nil {
		return Result{}, err
	}
	uri, err := stun.ParseURI(raw)
	if err != nil {
		return Result{}, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	start := time.Now()
	done := make(chan answer, 2)
	go func() {
		err := client.Do(stun.MustBuild(stun.TransactionID, stun.BindingRequest), func(ev stun.Event) {
			if ev.Error != nil {
				done <- answer{err: ev.Error}
				return
			}
			var xor stun.XORMappedAddress
			if err := xor.GetFrom(ev.Message); err != nil {
				done <- answer{err: err}
				return
			}
			done <- answer{mapped: xor.String()}
		})
		if err != nil {
			done <- answer{err: err}
		}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			return Result{}, a.err
		}
		return Result{Server: raw, Mapped: a.mapped, RTT: time.Since(start)}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
