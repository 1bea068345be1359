package challenge

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrCancelled is returned when a challenge resolves to Cancel
	ErrCancelled = errors.New("authentication challenge cancelled")
	// ErrNoPin is returned when no pinned certificate exists for a host
	ErrNoPin = errors.New("no pinned certificate for host")
	// ErrUnsupportedMethod is returned when no Authorization header can be
	// rendered for a challenge
	ErrUnsupportedMethod = errors.New("unsupported authentication method")
)

// Method is the authentication method a challenge asks for
type Method string

const (
	MethodHTTPBasic         Method = "basic"
	MethodHTTPDigest        Method = "digest"
	MethodServerTrust       Method = "server-trust"
	MethodClientCertificate Method = "client-certificate"
)

// ProtectionSpace identifies what a credential is valid for
type ProtectionSpace struct {
	Host     string
	Port     int
	Protocol string
	Realm    string
	Method   Method
}

// Key returns a stable string form used by credential stores
func (p ProtectionSpace) Key() string {
	return strings.Join([]string{
		p.Protocol,
		strings.ToLower(p.Host),
		strconv.Itoa(p.Port),
		p.Realm,
		string(p.Method),
	}, "|")
}

func (p ProtectionSpace) String() string {
	s := fmt.Sprintf("%s://%s:%d", p.Protocol, p.Host, p.Port)
	if p.Realm != "" {
		s += " realm=" + strconv.Quote(p.Realm)
	}
	return s + " (" + string(p.Method) + ")"
}

// ServerTrust is the certificate chain a server presented
type ServerTrust struct {
	Host  string
	Chain []*x509.Certificate
}

// Leaf returns the server's own certificate
func (t *ServerTrust) Leaf() *x509.Certificate {
	if t == nil || len(t.Chain) == 0 {
		return nil
	}
	return t.Chain[0]
}

// Fingerprint returns the hex SHA-256 of a certificate's DER encoding
func Fingerprint(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Challenge is one authentication or trust negotiation step
type Challenge struct {
	Method               Method
	Space                ProtectionSpace
	PreviousFailureCount int
	// Params holds the auth-params of a WWW-Authenticate challenge
	Params map[string]string
	// Trust is set for server-trust and client-certificate challenges
	Trust *ServerTrust
}

// Disposition is the terminal outcome of resolving a challenge
type Disposition int

const (
	PerformDefaultHandling Disposition = iota
	UseCredential
	Cancel
)

func (d Disposition) String() string {
	switch d {
	case UseCredential:
		return "use-credential"
	case PerformDefaultHandling:
		return "default"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Credential answers a challenge. Password credentials carry User and
// Password; trust credentials carry the accepted leaf Fingerprint.
type Credential struct {
	User        string
	Password    string
	Fingerprint string
}

// Resolution is what a resolver decided
type Resolution struct {
	Disposition Disposition
	Credential  *Credential
}

func cancel() Resolution {
	return Resolution{Disposition: Cancel}
}

func performDefault() Resolution {
	return Resolution{Disposition: PerformDefaultHandling}
}

func useCredential(cred *Credential) Resolution {
	return Resolution{Disposition: UseCredential, Credential: cred}
}
