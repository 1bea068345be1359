package challenge

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// DigestParams are the inputs of one digest computation
type DigestParams struct {
	Algorithm  string
	Username   string
	Password   string
	Realm      string
	Nonce      string
	CNonce     string
	NonceCount string
	QOP        string
	Method     string
	URI        string
}

// DigestResponse computes the request-digest defined by RFC 2617 and
// RFC 7616. Supported algorithms are MD5, MD5-sess, SHA-256 and
// SHA-256-sess; QOP is either "auth" or empty.
func DigestResponse(p DigestParams) (string, error) {
	newHash, sess, err := digestAlgorithm(p.Algorithm)
	if err != nil {
		return "", err
	}
	h := func(s string) string {
		sum := newHash()
		sum.Write([]byte(s))
		return hex.EncodeToString(sum.Sum(nil))
	}

	ha1 := h(p.Username + ":" + p.Realm + ":" + p.Password)
	if sess {
		ha1 = h(ha1 + ":" + p.Nonce + ":" + p.CNonce)
	}
	ha2 := h(p.Method + ":" + p.URI)

	if p.QOP == "" {
		return h(ha1 + ":" + p.Nonce + ":" + ha2), nil
	}
	return h(strings.Join([]string{ha1, p.Nonce, p.NonceCount, p.CNonce, p.QOP, ha2}, ":")), nil
}

func digestAlgorithm(name string) (func() hash.Hash, bool, error) {
	switch strings.ToUpper(name) {
	case "", "MD5":
		return md5.New, false, nil
	case "MD5-SESS":
		return md5.New, true, nil
	case "SHA-256":
		return sha256.New, false, nil
	case "SHA-256-SESS":
		return sha256.New, true, nil
	default:
		return nil, false, fmt.Errorf("%w: digest algorithm %q", ErrUnsupportedMethod, name)
	}
}

// selectQOP picks "auth" when the server offers it. auth-int alone is not
// supported.
func selectQOP(offered string) (string, error) {
	if offered == "" {
		return "", nil
	}
	for _, q := range strings.Split(offered, ",") {
		if strings.TrimSpace(strings.ToLower(q)) == "auth" {
			return "auth", nil
		}
	}
	return "", fmt.Errorf("%w: qop %q", ErrUnsupportedMethod, offered)
}

// newCNonce is replaced in tests
var newCNonce = func() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// Authorization renders the Authorization header value answering c with
// cred for req
func (c *Challenge) Authorization(req *types.Request, cred *Credential) (string, error) {
	if cred == nil {
		return "", fmt.Errorf("no credential for %s challenge", c.Method)
	}

	switch c.Method {
	case MethodHTTPBasic:
		token := base64.StdEncoding.EncodeToString([]byte(cred.User + ":" + cred.Password))
		return "Basic " + token, nil
	case MethodHTTPDigest:
		return c.digestAuthorization(req, cred)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, c.Method)
	}
}

func (c *Challenge) digestAuthorization(req *types.Request, cred *Credential) (string, error) {
	qop, err := selectQOP(c.Params["qop"])
	if err != nil {
		return "", err
	}

	uri := "/"
	if u, err := url.Parse(req.URL); err == nil {
		uri = u.RequestURI()
	}

	p := DigestParams{
		Algorithm: c.Params["algorithm"],
		Username:  cred.User,
		Password:  cred.Password,
		Realm:     c.Params["realm"],
		Nonce:     c.Params["nonce"],
		Method:    string(req.Method),
		URI:       uri,
		QOP:       qop,
	}
	if qop != "" || strings.HasSuffix(strings.ToUpper(p.Algorithm), "-SESS") {
		p.CNonce = newCNonce()
		p.NonceCount = "00000001"
	}

	response, err := DigestResponse(p)
	if err != nil {
		return "", err
	}

	fields := []string{
		"username=" + quote(p.Username),
		"realm=" + quote(p.Realm),
		"nonce=" + quote(p.Nonce),
		"uri=" + quote(p.URI),
	}
	if p.Algorithm != "" {
		fields = append(fields, "algorithm="+p.Algorithm)
	}
	if qop != "" {
		fields = append(fields, "qop="+qop, "nc="+p.NonceCount, "cnonce="+quote(p.CNonce))
	} else if p.CNonce != "" {
		fields = append(fields, "cnonce="+quote(p.CNonce))
	}
	fields = append(fields, "response="+quote(response))
	if opaque, ok := c.Params["opaque"]; ok {
		fields = append(fields, "opaque="+quote(opaque))
	}
	return "Digest " + strings.Join(fields, ", "), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote renders s as an RFC 7230 quoted-string. Bytes other than the quote
// and backslash pass through untouched.
func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}
