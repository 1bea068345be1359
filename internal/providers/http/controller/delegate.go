package controller

import (
	"github.com/GriffinCanCode/netctl/internal/providers/http/jsonapi"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Delegate receives the outcome of a submitted request. Exactly one of its
// methods is called, once, on the controller's dispatcher.
type Delegate interface {
	RequestDidComplete(req *types.Request, body []byte)
	RequestDidFail(req *types.Request, err error, status *types.Status)
}

// DocumentDelegate is implemented by delegates that want parsed documents.
// It is used instead of RequestDidComplete when the controller expects JSON
// and the body parses as a document.
type DocumentDelegate interface {
	RequestDidCompleteWithDocument(req *types.Request, doc *jsonapi.Document)
}

// AuthenticationDelegate answers HTTP Basic and Digest challenges
type AuthenticationDelegate interface {
	CredentialForChallenge(req *types.Request) (user, password string, ok bool)
}

// TrustDelegate decides whether a request may continue under default
// system trust after certificate pinning fails
type TrustDelegate interface {
	ShouldProceedWithoutCredential(req *types.Request) bool
}

// Funcs adapts closures to Delegate. Nil fields are capabilities the
// caller does not have.
type Funcs struct {
	OnComplete   func(req *types.Request, body []byte)
	OnDocument   func(req *types.Request, doc *jsonapi.Document)
	OnFailure    func(req *types.Request, err error, status *types.Status)
	OnCredential func(req *types.Request) (user, password string, ok bool)
	OnTrust      func(req *types.Request) bool
}

func (f Funcs) RequestDidComplete(req *types.Request, body []byte) {
	if f.OnComplete != nil {
		f.OnComplete(req, body)
	}
}

func (f Funcs) RequestDidFail(req *types.Request, err error, status *types.Status) {
	if f.OnFailure != nil {
		f.OnFailure(req, err, status)
	}
}

// capabilities is the resolved optional surface of one delegate
type capabilities struct {
	document   func(*types.Request, *jsonapi.Document)
	credential func(*types.Request) (string, string, bool)
	trust      func(*types.Request) bool
}

func capabilitiesOf(d Delegate) capabilities {
	switch f := d.(type) {
	case Funcs:
		return capabilities{document: f.OnDocument, credential: f.OnCredential, trust: f.OnTrust}
	case *Funcs:
		return capabilities{document: f.OnDocument, credential: f.OnCredential, trust: f.OnTrust}
	}

	var caps capabilities
	if dd, ok := d.(DocumentDelegate); ok {
		caps.document = dd.RequestDidCompleteWithDocument
	}
	if ad, ok := d.(AuthenticationDelegate); ok {
		caps.credential = ad.CredentialForChallenge
	}
	if td, ok := d.(TrustDelegate); ok {
		caps.trust = td.ShouldProceedWithoutCredential
	}
	return caps
}

// binding is what the registry stores per task
type binding struct {
	delegate Delegate
	caps     capabilities
}
