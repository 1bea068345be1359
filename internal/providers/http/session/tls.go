package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
	"github.com/GriffinCanCode/netctl/internal/providers/http/challenge"
)

// dialTLS performs the handshake itself so the chain can be offered to
// listeners as a server-trust challenge before it is accepted.
func (s *Session) dialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)
	t := taskFrom(ctx)

	cfg := s.base.TLSClientConfig.Clone()
	cfg.ServerName = host
	// Verification happens in VerifyConnection.
	cfg.InsecureSkipVerify = true

	var peers []*x509.Certificate
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		peers = cs.PeerCertificates
		return s.evaluateServerTrust(t, host, port, cs.PeerCertificates)
	}
	if s.clientCert != nil {
		cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return s.presentClientCertificate(t, host, port, peers)
		}
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
		Config:    cfg,
	}
	return dialer.DialContext(ctx, network, addr)
}

func (s *Session) evaluateServerTrust(t *Task, host string, port int, chain []*x509.Certificate) error {
	failures := 0
	if t != nil {
		failures = int(t.trustFailures.Load())
	}

	ch := challenge.TrustChallenge(challenge.MethodServerTrust, host, port, chain, failures)
	res := s.raise(t, ch)

	switch res.Disposition {
	case challenge.UseCredential:
		return nil
	case challenge.Cancel:
		s.trustFailed(t)
		return fmt.Errorf("server trust for %s: %w", host, challenge.ErrCancelled)
	default:
		if err := s.verifyChain(host, chain); err != nil {
			s.trustFailed(t)
			s.logger.Debug("default trust evaluation failed", zap.String("host", host), zap.Error(err))
			return err
		}
		return nil
	}
}

func (s *Session) trustFailed(t *Task) {
	if t != nil {
		t.trustFailures.Add(1)
	}
}

// verifyChain evaluates chain against the configured roots, or the system
// roots when none are configured
func (s *Session) verifyChain(host string, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: %s presented no certificates", ErrTrustEvaluation, host)
	}
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         s.rootCAs,
		Intermediates: intermediates,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTrustEvaluation, err)
	}
	return nil
}

func (s *Session) presentClientCertificate(t *Task, host string, port int, peers []*x509.Certificate) (*tls.Certificate, error) {
	ch := challenge.TrustChallenge(challenge.MethodClientCertificate, host, port, peers, 0)
	res := s.raise(t, ch)
	if res.Disposition == challenge.Cancel {
		return nil, fmt.Errorf("client certificate for %s: %w", host, challenge.ErrCancelled)
	}
	if t != nil {
		s.logger.Debug("presenting client certificate", logging.Task(t.id), zap.String("host", host))
	}
	return s.clientCert, nil
}
