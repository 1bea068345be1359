package challenge

import (
	"crypto/x509"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Header is one challenge parsed from a WWW-Authenticate value
type Header struct {
	Scheme string
	Params map[string]string
}

// ParseWWWAuthenticate parses every challenge in the given header values,
// including several challenges folded into one comma separated value.
func ParseWWWAuthenticate(values []string) []Header {
	var out []Header
	for _, value := range values {
		out = append(out, parseValue(value)...)
	}
	return out
}

func parseValue(s string) []Header {
	var (
		out     []Header
		current *Header
	)

	for {
		s = skipSpaceAndCommas(s)
		if s == "" {
			break
		}

		token, rest := readToken(s)
		if token == "" {
			// Unparseable input; stop rather than loop forever.
			break
		}
		afterToken := strings.TrimLeft(rest, " \t")

		if strings.HasPrefix(afterToken, "=") && current != nil {
			value, remaining := readValue(strings.TrimLeft(afterToken[1:], " \t"))
			current.Params[strings.ToLower(token)] = value
			s = remaining
			continue
		}

		out = append(out, Header{Scheme: strings.ToLower(token), Params: map[string]string{}})
		current = &out[len(out)-1]
		s = rest

		// token68 form, e.g. "Negotiate abc123=="
		if t68, remaining, ok := readToken68(strings.TrimLeft(s, " \t")); ok {
			current.Params[""] = t68
			s = remaining
		}
	}
	return out
}

func skipSpaceAndCommas(s string) string {
	return strings.TrimLeft(s, " \t,")
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}

func readToken(s string) (string, string) {
	i := 0
	for i < len(s) && isTokenChar(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func readValue(s string) (string, string) {
	if !strings.HasPrefix(s, `"`) {
		return readToken(s)
	}

	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:]
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), ""
}

// readToken68 reads a token68 credential that stands alone after a scheme.
// Input that continues like an auth-param is left for the caller.
func readToken68(s string) (string, string, bool) {
	i := 0
	for i < len(s) && isToken68Char(s[i]) {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	j := i
	for j < len(s) && s[j] == '=' {
		j++
	}
	after := strings.TrimLeft(s[j:], " \t")
	if after != "" && after[0] != ',' {
		return "", s, false
	}
	return s[:j], s[j:], true
}

func isToken68Char(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-._~+/", c) >= 0
}

// FromResponse builds a challenge from a 401 response. Digest is preferred
// over Basic when a server offers both; any other scheme yields a challenge
// with that scheme's name as its method.
func FromResponse(req *types.Request, resp *http.Response, previousFailures int) (*Challenge, bool) {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil, false
	}
	headers := ParseWWWAuthenticate(resp.Header.Values("WWW-Authenticate"))
	if len(headers) == 0 {
		return nil, false
	}

	chosen := headers[0]
	for _, h := range headers {
		if h.Scheme == "digest" {
			chosen = h
			break
		}
		if h.Scheme == "basic" && chosen.Scheme != "basic" {
			chosen = h
		}
	}

	method := Method(chosen.Scheme)
	switch chosen.Scheme {
	case "basic":
		method = MethodHTTPBasic
	case "digest":
		method = MethodHTTPDigest
	}

	space := spaceFor(req.URL, method)
	space.Realm = chosen.Params["realm"]

	return &Challenge{
		Method:               method,
		Space:                space,
		PreviousFailureCount: previousFailures,
		Params:               chosen.Params,
	}, true
}

// TrustChallenge builds a server-trust or client-certificate challenge for a
// TLS handshake with host:port
func TrustChallenge(method Method, host string, port int, chain []*x509.Certificate, previousFailures int) *Challenge {
	var trust *ServerTrust
	if len(chain) > 0 {
		trust = &ServerTrust{Host: host, Chain: chain}
	}
	return &Challenge{
		Method: method,
		Space: ProtectionSpace{
			Host:     host,
			Port:     port,
			Protocol: "https",
			Method:   method,
		},
		PreviousFailureCount: previousFailures,
		Trust:                trust,
	}
}

func spaceFor(rawURL string, method Method) ProtectionSpace {
	space := ProtectionSpace{Method: method}

	u, err := url.Parse(rawURL)
	if err != nil {
		return space
	}
	space.Protocol = u.Scheme
	space.Host = u.Hostname()
	space.Port = defaultPort(u)
	return space
}

func defaultPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}
