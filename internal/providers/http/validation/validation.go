package validation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

var (
	ErrInvalidResponse        = errors.New("invalid response")
	ErrUnexpectedStatusCode   = errors.New("unexpected status code")
	ErrUnexpectedMimeType     = errors.New("unexpected mime type")
	errUnknownExpectationKind = errors.New("unknown expectation kind")
)

// Kind selects which expectation table a profile applies
type Kind int

const (
	KindJSON Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Profile describes what a logical request kind accepts
type Profile struct {
	Kind      Kind
	MimeTypes []types.MimeType
}

var (
	// JSON expects application/json with a method dependent status set
	JSON = Profile{Kind: KindJSON, MimeTypes: []types.MimeType{types.MimeJSON}}
	// Image expects image/png with 200 or 201 regardless of method
	Image = Profile{Kind: KindImage, MimeTypes: []types.MimeType{types.MimePNGImage}}
)

var (
	readStatuses   = types.StatusSet{types.StatusOK, types.StatusNoContent}
	createStatuses = types.StatusSet{types.StatusOK, types.StatusNoContent, types.StatusCreated}
	deleteStatuses = types.StatusSet{types.StatusOK, types.StatusNoContent, types.StatusAccepted}
	imageStatuses  = types.StatusSet{types.StatusOK, types.StatusCreated}
)

// Expectation is a profile resolved for one request method
type Expectation struct {
	Statuses  types.StatusSet
	MimeTypes []types.MimeType
}

// Expect resolves the profile for method. Methods outside the JSON table get
// an empty status set, so their responses always fail validation.
func (p Profile) Expect(method types.Method) Expectation {
	exp := Expectation{MimeTypes: slices.Clone(p.MimeTypes)}

	switch p.Kind {
	case KindImage:
		exp.Statuses = slices.Clone(imageStatuses)
	case KindJSON:
		switch method {
		case types.MethodGet, types.MethodPut, types.MethodPatch:
			exp.Statuses = slices.Clone(readStatuses)
		case types.MethodPost:
			exp.Statuses = slices.Clone(createStatuses)
		case types.MethodDelete:
			exp.Statuses = slices.Clone(deleteStatuses)
		default:
			exp.Statuses = types.StatusSet{}
		}
	default:
		exp.Statuses = types.StatusSet{}
	}
	return exp
}

// Accepts reports whether mt is one of the expected content types
func (e Expectation) Accepts(mt types.MimeType) bool {
	return slices.Contains(e.MimeTypes, mt)
}

// Validate checks a completed response against exp. The returned error wraps
// one of ErrInvalidResponse, ErrUnexpectedStatusCode or ErrUnexpectedMimeType.
//
// A missing or unrecognised Content-Type is tolerated; only a recognised
// type that the expectation does not list is rejected.
func Validate(resp *types.Response, exp Expectation) error {
	if !resp.HasStatus() {
		return ErrInvalidResponse
	}

	if !exp.Statuses.Contains(resp.Status) {
		return fmt.Errorf("%w: %d not in %v", ErrUnexpectedStatusCode, resp.Status.Code(), codes(exp.Statuses))
	}

	if mt, ok := resp.MimeType(); ok && !exp.Accepts(mt) {
		return fmt.Errorf("%w: %s", ErrUnexpectedMimeType, mt)
	}

	return nil
}

// ValidateRequest resolves profile for req's method and validates resp
func ValidateRequest(profile Profile, req *types.Request, resp *types.Response) error {
	if req == nil {
		return fmt.Errorf("%w: no request", ErrInvalidResponse)
	}
	return Validate(resp, profile.Expect(req.Method))
}

// ParseKind maps a name ("json", "image") to a Kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case "json":
		return KindJSON, nil
	case "image":
		return KindImage, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownExpectationKind, name)
	}
}

// ProfileFor returns the predefined profile for kind
func ProfileFor(kind Kind) Profile {
	if kind == KindImage {
		return Image
	}
	return JSON
}

func codes(set types.StatusSet) []int {
	out := make([]int, 0, len(set))
	for _, s := range set.Sorted() {
		out = append(out, s.Code())
	}
	return out
}
