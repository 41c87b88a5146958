// Package wsrelay tunnels the raw byte stream through a websocket relay.
//
// Devices that cannot open outbound TLS sockets themselves reach the Bot API
// through a relay that accepts a websocket and forwards binary frames to the
// requested host and port. The relay contract is minimal: the target is
// passed as "host" and "port" query parameters and every frame is opaque
// payload in both directions.
package wsrelay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"

	"github.com/flemzord/wirebot/pkg/transport"
)

// Dialer returns a transport.DialFunc that connects through the relay at
// relayURL. header is sent with the websocket handshake, typically to carry
// relay credentials.
func Dialer(relayURL string, header http.Header) transport.DialFunc {
	return func(ctx context.Context, host string, port int) (net.Conn, error) {
		target, err := targetURL(relayURL, host, port)
		if err != nil {
			return nil, err
		}

		ws, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("wsrelay: dial %s:%d: %w", host, port, err)
		}

		ws.SetReadLimit(-1)
		return newConn(ws, net.JoinHostPort(host, strconv.Itoa(port))), nil
	}
}

func targetURL(relayURL, host string, port int) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("wsrelay: parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("wsrelay: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("host", host)
	q.Set("port", strconv.Itoa(port))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
