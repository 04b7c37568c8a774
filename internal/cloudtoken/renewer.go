package cloudtoken

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRenewer refreshes the stored credential against the cloud service.
// Hitting the lightweight settings endpoint with the current cookies makes
// the service rotate serviceToken and the slh cookie via Set-Cookie; any
// non-200 answer means the credential was rejected upstream.
type HTTPRenewer struct {
	store   *Store
	baseURL string
	client  *http.Client
}

// NewHTTPRenewer creates a renewer for the given store and service base URL.
// A nil client gets a default with a 30s timeout.
func NewHTTPRenewer(store *Store, baseURL string, client *http.Client) *HTTPRenewer {
	if baseURL == "" {
		baseURL = "https://i.mi.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRenewer{
		store:   store,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

// Renew loads the stored credential, presents it to the service and applies
// any rotated cookies from the response. It satisfies RenewFunc.
func (r *HTTPRenewer) Renew(ctx context.Context) (*Token, error) {
	tok, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("no stored credential (log in once to create %s): %w", r.store.Path(), err)
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("stored credential is incomplete, please log in again")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/status/lite/setting", nil)
	if err != nil {
		return nil, fmt.Errorf("build renewal request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "serviceToken", Value: tok.ServiceToken})
	req.AddCookie(&http.Cookie{Name: "userId", Value: tok.UserID})
	req.AddCookie(&http.Cookie{Name: "i.mi.com_isvalid_servicetoken", Value: tok.IsValidServiceToken})
	req.AddCookie(&http.Cookie{Name: "i.mi.com_slh", Value: tok.SLH})

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("renew credential: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential rejected by %s (status %d), please log in again", r.baseURL, resp.StatusCode)
	}

	for _, c := range resp.Cookies() {
		if c.Value == "" {
			continue
		}
		switch c.Name {
		case "serviceToken":
			tok.ServiceToken = c.Value
		case "userId":
			tok.UserID = c.Value
		case "i.mi.com_isvalid_servicetoken":
			tok.IsValidServiceToken = c.Value
		case "i.mi.com_slh":
			tok.SLH = c.Value
		}
	}
	return tok, nil
}
