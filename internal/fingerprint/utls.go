// Package fingerprint builds HTTP transports whose TLS ClientHello matches a
// real browser. The direct-fetch path uses these so its handshake is
// indistinguishable from the browser session driving the rest of the
// pipeline.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"

	utls "github.com/refraction-networking/utls"
)

// Profile selects a TLS fingerprint.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	// ProfileGo uses the standard library TLS stack. Tests use it so httptest
	// servers see an ordinary Go client.
	ProfileGo Profile = "go"
)

// Transport returns a RoundTripper with the requested fingerprint. For
// ProfileGo it is a plain cloned http.Transport; otherwise DialTLSContext is
// replaced with a uTLS handshake.
func Transport(p Profile) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if p == ProfileGo || p == "" {
		return transport, nil
	}

	var hello utls.ClientHelloID
	switch p {
	case ProfileChrome:
		hello = utls.HelloChrome_Auto
	case ProfileFirefox:
		hello = utls.HelloFirefox_Auto
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host}, hello)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}
