package challenge

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

// PinStore returns the certificate a host's chain must validate against
type PinStore interface {
	Pin(host string) (*x509.Certificate, error)
}

// Manifest maps hosts to pin files when file names do not follow the
// <host>.der convention
type Manifest struct {
	Pins map[string]string `yaml:"pins"`
}

// DirPinStore reads pins from a directory at evaluation time, so a pin can
// be rotated without restarting. A host's pin is the manifest entry if
// present, otherwise <host>.der, otherwise <host>.pem.
type DirPinStore struct {
	dir      string
	manifest map[string]string
}

// NewDirPinStore creates a store for dir. manifestPath is optional.
func NewDirPinStore(dir, manifestPath string) (*DirPinStore, error) {
	store := &DirPinStore{dir: dir, manifest: map[string]string{}}
	if manifestPath == "" {
		return store, nil
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pin manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse pin manifest: %w", err)
	}
	for host, file := range m.Pins {
		store.manifest[strings.ToLower(host)] = file
	}
	return store, nil
}

// Pin loads the pinned certificate for host
func (s *DirPinStore) Pin(host string) (*x509.Certificate, error) {
	host = strings.ToLower(host)
	if host == "" || strings.ContainsAny(host, `/\`) || strings.Contains(host, "..") {
		return nil, fmt.Errorf("%w: %q", ErrNoPin, host)
	}

	candidates := []string{host + ".der", host + ".pem"}
	if file, ok := s.manifest[host]; ok {
		candidates = []string{file}
	}

	for _, name := range candidates {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, name)
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read pin for %s: %w", host, err)
		}
		return ParseCertificate(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoPin, host)
}

// ParseCertificate accepts DER or PEM encoded certificates
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
		}
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pinned certificate: %w", err)
	}
	return cert, nil
}

// MapPinStore holds pins in memory
type MapPinStore struct {
	mu   sync.RWMutex
	pins map[string]*x509.Certificate
}

// NewMapPinStore creates an empty in-memory pin store
func NewMapPinStore() *MapPinStore {
	return &MapPinStore{pins: make(map[string]*x509.Certificate)}
}

// Add pins cert for host
func (s *MapPinStore) Add(host string, cert *x509.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[strings.ToLower(host)] = cert
}

// Pin returns the pinned certificate for host
func (s *MapPinStore) Pin(host string) (*x509.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.pins[strings.ToLower(host)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPin, host)
	}
	return cert, nil
}

// EvaluatePinned validates trust's chain using pin as the only trust anchor
// and checks that the leaf is valid for the trust's host.
func EvaluatePinned(trust *ServerTrust, pin *x509.Certificate) error {
	leaf := trust.Leaf()
	if leaf == nil {
		return errors.New("server presented no certificate")
	}
	if pin == nil {
		return ErrNoPin
	}

	roots := x509.NewCertPool()
	roots.AddCert(pin)

	intermediates := x509.NewCertPool()
	for _, cert := range trust.Chain[1:] {
		intermediates.AddCert(cert)
	}

	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       trust.Host,
		Roots:         roots,
		Intermediates: intermediates,
	})
	if err != nil {
		return fmt.Errorf("pinned evaluation failed: %w", err)
	}
	return nil
}
