// Package client provides the HTTP client stack shared by every task of a
// session.
//
// The stack is built on go-resty/resty with go-retryablehttp underneath:
//   - Socket-level retries with exponential backoff (errors classified as
//     permanent, such as a cancelled trust challenge, are never retried)
//   - Transparent gzip and zstd decoding via klauspost/compress/gzhttp
//   - A golang.org/x/time/rate limiter shared by all requests
//   - One circuit breaker per host
//
// Example Usage:
//
//	c := client.NewClient(client.Options{Transport: base, Logger: logger})
//	req, err := c.Request(ctx)
//	if err != nil {
//		return err
//	}
//	resp, err := c.Execute(url, func() (*resty.Response, error) {
//		return req.SetDoNotParseResponse(true).Execute(method, url)
//	})
package client
