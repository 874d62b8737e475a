package go_nrepl

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ResolveAddr turns an nREPL server address into a net.Addr.
//
// Accepted forms are "host:port", "nrepl://host:port", "tcp://host:port",
// "tls://host:port", "unix:///path/to/socket" and a bare socket path.
// A missing port defaults to NREPL_DEFAULT_PORT.
func ResolveAddr(address string) (net.Addr, error) {
	scheme, u, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "tcp", "nrepl", "tls":
		host := u.Hostname()
		if host == "" {
			host = NREPL_DEFAULT_HOST
		}
		port := u.Port()
		if port == "" {
			port = strconv.Itoa(NREPL_DEFAULT_PORT)
		}
		return net.ResolveTCPAddr("tcp", net.JoinHostPort(host, port))
	case "unix":
		return net.ResolveUnixAddr("unix", u.Path)
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}
}

// parseAddress normalizes address into a URL and returns its scheme.
// Addresses without "://" are host:port pairs, or unix socket paths when
// they do not split into a host and port.
func parseAddress(address string) (string, *url.URL, error) {
	if !strings.Contains(address, "://") {
		if _, _, err := net.SplitHostPort(address); err != nil {
			address = "unix://" + address
		} else {
			address = "tcp://" + address
		}
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", nil, err
	}
	return u.Scheme, u, nil
}

// Tcp dials the nREPL server over TCP, TLS or a unix domain socket.
// It holds addressing and TLS settings only; the live net.Conn belongs to
// the Connection that dialed it.
type Tcp struct {
	network   string
	address   string // dial target, resolved at dial time
	host      string
	tlsConfig *tls.Config
	// tlsForced is set by SetupTLS and applies to every address.
	// tlsScheme follows the last address given to Init.
	tlsForced bool
	tlsScheme bool
}

// Init records the server address. Host names are resolved when dialing,
// under the dial deadline. A "tls://" address enables TLS for that address
// only; SetupTLS enables it for all of them.
func (tcp *Tcp) Init(address string) error {
	scheme, u, err := parseAddress(address)
	if err != nil {
		return err
	}
	switch scheme {
	case "tcp", "nrepl", "tls":
		host := u.Hostname()
		if host == "" {
			host = NREPL_DEFAULT_HOST
		}
		port := u.Port()
		if port == "" {
			port = strconv.Itoa(NREPL_DEFAULT_PORT)
		}
		tcp.network = "tcp"
		tcp.address = net.JoinHostPort(host, port)
		tcp.host = host
	case "unix":
		if u.Path == "" {
			return fmt.Errorf("empty unix socket path in %q", address)
		}
		tcp.network = "unix"
		tcp.address = u.Path
		tcp.host = ""
	default:
		return fmt.Errorf("unsupported scheme: %s", scheme)
	}
	tcp.tlsScheme = scheme == "tls"
	return nil
}

// SetupTLS configures TLS for TLS-enabled nREPL servers.
// It loads client certificates, CA certificates, and configures TLS settings.
// The insecure parameter allows skipping certificate verification (development only).
//
// Parameters:
//   - certFile: Path to client certificate file (PEM format)
//   - keyFile: Path to client private key file (PEM format)
//   - caFile: Path to CA certificate file (PEM format, optional)
//   - insecure: If true, skip certificate verification (NOT for production)
func (tcp *Tcp) SetupTLS(certFile, keyFile, caFile string, insecure bool) error {
	tcp.tlsConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	tcp.tlsForced = true

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("failed to load client certificate: %w", err)
		}
		tcp.tlsConfig.Certificates = []tls.Certificate{cert}
		Debug("Loaded client certificate from %s", certFile)
	}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("failed to parse CA certificate from %s", caFile)
		}
		tcp.tlsConfig.RootCAs = caPool
		Debug("Loaded CA certificate from %s", caFile)
	} else if roots, err := x509.SystemCertPool(); err == nil {
		tcp.tlsConfig.RootCAs = roots
		Debug("Using system CA certificate pool")
	} else {
		Warning("Failed to load system CA pool: %v", err)
		tcp.tlsConfig.RootCAs = x509.NewCertPool()
	}

	if insecure {
		Warning("TLS certificate verification DISABLED - insecure mode active")
		tcp.tlsConfig.InsecureSkipVerify = true
	}

	return nil
}

// Dial opens a socket to the address given to Init. The attempt is bounded by
// both ctx and timeout; a zero timeout leaves only ctx in charge. Every
// failure is a *ConnectionError.
func (tcp *Tcp) Dial(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	if tcp.address == "" {
		if err := tcp.Init(net.JoinHostPort(NREPL_DEFAULT_HOST, strconv.Itoa(NREPL_DEFAULT_PORT))); err != nil {
			return nil, NewConnectionError("", "invalid address", err)
		}
	}
	addr := tcp.address

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	netDialer := &net.Dialer{}
	var (
		conn net.Conn
		err  error
	)
	if tcp.UsesTLS() {
		cfg := tcp.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if cfg.ServerName == "" && tcp.host != "" {
			cfg = cfg.Clone()
			cfg.ServerName = tcp.host
		}
		Debug("Establishing TLS connection to %s", addr)
		d := &tls.Dialer{NetDialer: netDialer, Config: cfg}
		conn, err = d.DialContext(ctx, tcp.network, addr)
	} else {
		Debug("Establishing %s connection to %s", tcp.network, addr)
		conn, err = netDialer.DialContext(ctx, tcp.network, addr)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, NewConnectionError(addr, "timed out", errors.Join(ErrTimeout, err))
		}
		return nil, NewConnectionError(addr, "dial failed", err)
	}

	if tlsConn, ok := conn.(*tls.Conn); ok {
		state := tlsConn.ConnectionState()
		Debug("TLS connection established: version=%s cipher=%s",
			tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite))
	}
	return conn, nil
}

// Address returns the network and dial target, empty before Init.
func (tcp *Tcp) Address() (network, address string) {
	return tcp.network, tcp.address
}

// UsesTLS reports whether Dial will negotiate TLS.
func (tcp *Tcp) UsesTLS() bool {
	return tcp.tlsForced || tcp.tlsScheme
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
