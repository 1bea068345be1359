// Package types provides the value types shared by every part of the
// request engine.
//
// Core Types:
//   - Request: method, URL, headers and body of one logical exchange
//   - Response: status and headers of a completed exchange
//   - TaskID: handle of one in-flight exchange inside the shared session
//
// Closed Enumerations:
//   - Status: HTTP status codes with ordering by numeric code
//   - MimeType: application/json, image/png, text/html
//
// Example Usage:
//
//	req, err := types.NewRequest(types.MethodGet, "https://api.example.com/widgets/1", nil)
//	if err != nil {
//	    return err
//	}
//	req.SetHeader("Accept", string(types.MimeJSON))
package types
