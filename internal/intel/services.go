package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// VirusTotal looks up and scans resources on VirusTotal v3
type VirusTotal struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// LookupResource fetches a report by resource path, e.g. "files/<sha256>"
// or "urls/<id>".
func (v *VirusTotal) LookupResource(ctx context.Context, resourceID string) (json.RawMessage, error) {
	if v.apiKey == "" {
		return nil, ErrNotConfigured
	}

	resourceID = strings.Trim(strings.TrimSpace(resourceID), "/")
	if resourceID == "" {
		return nil, fmt.Errorf("%w: empty resource id", ErrInvalidInput)
	}
	parts := strings.Split(resourceID, "/")
	for i, part := range parts {
		if part == "" || part == "." || part == ".." {
			return nil, fmt.Errorf("%w: bad resource id %q", ErrInvalidInput, resourceID)
		}
		parts[i] = url.PathEscape(part)
	}

	req, err := newRequest(ctx, http.MethodGet, v.baseURL+"/"+strings.Join(parts, "/"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apikey", v.apiKey)
	return doJSON(v.http, req, "VirusTotal")
}

// ScanURL submits a URL for analysis
func (v *VirusTotal) ScanURL(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if v.apiKey == "" {
		return nil, ErrNotConfigured
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	form := url.Values{"url": {normalized}}
	req, err := newRequest(ctx, http.MethodPost, v.baseURL+"/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apikey", v.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return doJSON(v.http, req, "VirusTotal")
}

// SafeBrowsing checks URLs against Google's threat lists
type SafeBrowsing struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

type sbClient struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type sbEntry struct {
	URL string `json:"url"`
}

type sbThreatInfo struct {
	ThreatTypes      []string  `json:"threatTypes"`
	PlatformTypes    []string  `json:"platformTypes"`
	ThreatEntryTypes []string  `json:"threatEntryTypes"`
	ThreatEntries    []sbEntry `json:"threatEntries"`
}

type sbRequest struct {
	Client     sbClient     `json:"client"`
	ThreatInfo sbThreatInfo `json:"threatInfo"`
}

// CheckURL returns the threat matches for a URL. An empty object means no match.
func (s *SafeBrowsing) CheckURL(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if s.apiKey == "" {
		return nil, ErrNotConfigured
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(sbRequest{
		Client: sbClient{ClientID: "defendax-webapp", ClientVersion: "1.0"},
		ThreatInfo: sbThreatInfo{
			ThreatTypes:      []string{"MALWARE", "SOCIAL_ENGINEERING"},
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries:    []sbEntry{{URL: normalized}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode safe browsing request: %w", err)
	}

	target := s.baseURL + "?key=" + url.QueryEscape(s.apiKey)
	req, err := newRequest(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(s.http, req, "Safe Browsing")
}

// AbuseIPDB reports the abuse confidence of an address
type AbuseIPDB struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func (a *AbuseIPDB) CheckIP(ctx context.Context, ip string) (json.RawMessage, error) {
	if a.apiKey == "" {
		return nil, ErrNotConfigured
	}
	addr, err := ParseIP(ip)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ipAddress", addr.String())
	q.Set("confidenceMinimum", "50")

	req, err := newRequest(ctx, http.MethodGet, a.baseURL+"/check?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Key", a.apiKey)
	req.Header.Set("Accept", "application/json")
	return doJSON(a.http, req, "AbuseIPDB")
}
