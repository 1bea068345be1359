// Package validation decides whether a transport-successful response is a
// success for the caller.
//
// Expectation tables:
//
//	JSON   GET, PUT, PATCH  200 204
//	       POST             200 201 204
//	       DELETE           200 202 204
//	       anything else    (none)
//	Image  any method       200 201, image/png
//
// Validation runs after the body has been fully received and before any
// success callback fires.
package validation
