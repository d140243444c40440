package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/navsim/internal/core/observability/log"
)

// TelemetryALPN is the application protocol negotiated by the QUIC feed.
const TelemetryALPN = "navsim-telemetry"

// Application error codes sent when the server closes a feed connection.
const (
	quicCodeShutdown quic.ApplicationErrorCode = 0
	quicCodeTooSlow  quic.ApplicationErrorCode = 1
	quicCodeInternal quic.ApplicationErrorCode = 2
)

const quicWriteWait = 5 * time.Second

// GenerateSelfSignedTLS generates a self-signed certificate for localhost
// and returns a TLS 1.3 server config that offers TelemetryALPN.
func GenerateSelfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"navsim"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{certDER}, PrivateKey: key}},
		NextProtos:   []string{TelemetryALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// QUICFeed streams frames to QUIC clients. Each connection gets one
// server-opened stream carrying one JSON document per line.
type QUICFeed struct {
	addr     string
	tlsConf  *tls.Config
	quicConf *quic.Config
	hub      *hub
	logger   log.Log

	ready    chan struct{}
	mu       sync.Mutex
	listener *quic.Listener
}

func NewQUICFeed(addr string, tlsConf *tls.Config, idleTimeout time.Duration, buffer int, logger log.Log) *QUICFeed {
	logger = logger.With(log.String("component", "quic"))
	return &QUICFeed{
		addr:    addr,
		tlsConf: tlsConf,
		quicConf: &quic.Config{
			MaxIdleTimeout:        idleTimeout,
			KeepAlivePeriod:       idleTimeout / 2,
			MaxIncomingStreams:    1,
			MaxIncomingUniStreams: -1,
		},
		hub:    newHub("quic", buffer, encodeFrameLine, logger),
		logger: logger,
		ready:  make(chan struct{}),
	}
}

func encodeFrameLine(msg FrameMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Ready is closed once the listener is bound.
func (f *QUICFeed) Ready() <-chan struct{} { return f.ready }

// Addr is the bound address, or nil before Ready.
func (f *QUICFeed) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

func (f *QUICFeed) Stats() FeedStats { return f.hub.stats() }

// Run accepts connections until ctx is done.
func (f *QUICFeed) Run(ctx context.Context) error {
	ln, err := quic.ListenAddr(f.addr, f.tlsConf, f.quicConf)
	if err != nil {
		return fmt.Errorf("%w: quic %s: %w", ErrListenerFailed, f.addr, err)
	}
	f.mu.Lock()
	f.listener = ln
	f.mu.Unlock()
	close(f.ready)

	f.logger.Info("QUIC feed listening", log.String("addr", ln.Addr().String()))

	var wg sync.WaitGroup
	defer func() {
		f.hub.closeAll()
		_ = ln.Close()
		wg.Wait()
		f.logger.Info("QUIC feed stopped")
	}()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("quic accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.serve(ctx, conn)
		}()
	}
}

func (f *QUICFeed) serve(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		f.logger.Warn("Failed to open feed stream", log.String("remote_addr", remote), log.Error(err))
		_ = conn.CloseWithError(quicCodeInternal, "stream")
		return
	}

	sess, err := f.hub.register()
	if err != nil {
		_ = conn.CloseWithError(quicCodeShutdown, "shutting down")
		return
	}

	var reason error
	defer func() { f.hub.unregister(sess, reason) }()

	for {
		select {
		case b := <-sess.send:
			_ = stream.SetWriteDeadline(time.Now().Add(quicWriteWait))
			if _, err := stream.Write(b); err != nil {
				reason = err
				_ = conn.CloseWithError(quicCodeInternal, "write failed")
				return
			}
		case <-sess.Done():
			if errors.Is(sess.Err(), ErrClientTooSlow) {
				_ = conn.CloseWithError(quicCodeTooSlow, ErrClientTooSlow.Error())
				return
			}
			_ = stream.Close()
			_ = conn.CloseWithError(quicCodeShutdown, "shutting down")
			return
		case <-conn.Context().Done():
			reason = context.Cause(conn.Context())
			return
		}
	}
}
