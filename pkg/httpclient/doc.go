// Package httpclient provides the HTTP client factory used for all outbound
// secret-store traffic.
//
// The factory composes transport layers to provide:
//   - Automatic retries with exponential backoff and jitter (idempotent
//     methods only)
//   - Request logging with sanitized URLs
//   - User-Agent and request-ID header injection
//   - TLS 1.2+ with an opt-out for stores using private CAs
//   - Connection pooling
//
// Example usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "vaultbroker/1.0"
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
package httpclient
