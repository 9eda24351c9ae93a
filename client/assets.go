package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"pkt.systems/fabricmcp/internal/jsonutil"
)

// FetchAsset downloads a signed asset URL. The request carries no
// Authorization header: the signature embedded in the URL is the credential.
// It returns the raw bytes and the response Content-Type header.
func (c *Client) FetchAsset(ctx context.Context, signedURL string) ([]byte, string, error) {
	redacted := redactURL(signedURL)
	c.logTraceCtx(ctx, "fabric.asset.fetch.start", "url", redacted)
	reqCtx, cancel := c.assetContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logErrorCtx(ctx, "fabric.asset.fetch.transport_error", "url", redacted, "error", err)
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logWarnCtx(ctx, "fabric.asset.fetch.error", "url", redacted, "status", resp.StatusCode)
		return nil, "", c.decodeError(resp, http.MethodGet, redacted)
	}
	data, err := jsonutil.ReadCapped(resp.Body, c.maxAssetBytes)
	if err != nil {
		return nil, "", fmt.Errorf("read asset: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	c.logTraceCtx(ctx, "fabric.asset.fetch.success", "url", redacted, "content_type", contentType, "bytes", len(data))
	return data, contentType, nil
}

// redactURL strips the query string, which carries the signature.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
