package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/config"
)

// Conn is the subset of a directory connection used for authentication.
type Conn interface {
	Bind(username, password string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	Close()
}

// Dialer opens directory connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// NetworkDialer dials the configured directory server.
type NetworkDialer struct {
	cfg config.LDAPConfig
}

// NewNetworkDialer creates a dialer for the configured server.
func NewNetworkDialer(cfg config.LDAPConfig) *NetworkDialer {
	return &NetworkDialer{cfg: cfg}
}

// Dial connects to the server, applying the configured timeout to the dial
// and to every subsequent request on the connection.
func (d *NetworkDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	netDialer := &net.Dialer{Timeout: d.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		netDialer.Deadline = deadline
	}

	tlsConfig := &tls.Config{
		ServerName:         d.host(),
		InsecureSkipVerify: d.cfg.InsecureSkipVerify,
	}

	opts := []goldap.DialOpt{goldap.DialWithDialer(netDialer)}
	if d.cfg.UseTLS {
		opts = append(opts, goldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := goldap.DialURL(d.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL(), err)
	}
	conn.SetTimeout(d.cfg.Timeout)

	if d.cfg.StartTLS && !d.cfg.UseTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("start tls: %w", err)
		}
	}

	return &netConn{conn: conn}, nil
}

// URL returns the server URL. A server value that already carries a scheme
// is used as is.
func (d *NetworkDialer) URL() string {
	if strings.Contains(d.cfg.Server, "://") {
		return d.cfg.Server
	}
	scheme := "ldap"
	if d.cfg.UseTLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(d.cfg.Server, strconv.Itoa(d.cfg.Port)))
}

func (d *NetworkDialer) host() string {
	server := d.cfg.Server
	if i := strings.Index(server, "://"); i >= 0 {
		server = server[i+3:]
	}
	if host, _, err := net.SplitHostPort(server); err == nil {
		return host
	}
	return server
}

type netConn struct {
	conn *goldap.Conn
}

func (c *netConn) Bind(username, password string) error {
	return c.conn.Bind(username, password)
}

func (c *netConn) Search(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
	return c.conn.Search(req)
}

func (c *netConn) Close() {
	c.conn.Close()
}
