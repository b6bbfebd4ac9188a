// Package intel holds thin clients for free third-party threat intelligence
// services.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 512

// ErrNotConfigured is returned when a service has no API key
var ErrNotConfigured = errors.New("intel service is not configured")

// ErrInvalidInput is returned before any call is made for malformed input
var ErrInvalidInput = errors.New("invalid intel lookup input")

// StatusError reports a non-2xx response from an intel service
type StatusError struct {
	Service string
	Status  int
	// Body is the start of the error response
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API Error: %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s API Error: %d: %s", e.Service, e.Status, e.Body)
}

func (e *StatusError) UpstreamStatus() int {
	return e.Status
}

// Config carries the keys and optional endpoint overrides
type Config struct {
	VirusTotalKey   string
	SafeBrowsingKey string
	AbuseIPDBKey    string

	VirusTotalURL   string
	SafeBrowsingURL string
	AbuseIPDBURL    string

	HTTPClient *http.Client
}

// Clients groups every intel service
type Clients struct {
	VirusTotal   *VirusTotal
	SafeBrowsing *SafeBrowsing
	AbuseIPDB    *AbuseIPDB
}

// New builds all intel clients from one config
func New(cfg Config) *Clients {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Clients{
		VirusTotal: &VirusTotal{
			apiKey:  cfg.VirusTotalKey,
			baseURL: orDefault(cfg.VirusTotalURL, "https://www.virustotal.com/api/v3"),
			http:    httpClient,
		},
		SafeBrowsing: &SafeBrowsing{
			apiKey:  cfg.SafeBrowsingKey,
			baseURL: orDefault(cfg.SafeBrowsingURL, "https://safebrowsing.googleapis.com/v4/threatMatches:find"),
			http:    httpClient,
		},
		AbuseIPDB: &AbuseIPDB{
			apiKey:  cfg.AbuseIPDBKey,
			baseURL: orDefault(cfg.AbuseIPDBURL, "https://api.abuseipdb.com/api/v2"),
			http:    httpClient,
		},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.TrimRight(v, "/")
}

// NormalizeURL checks that raw is an absolute http(s) URL and converts its
// host to the ASCII (punycode) form.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: url must use http or https", ErrInvalidInput)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: url has no host", ErrInvalidInput)
	}

	ascii, err := NormalizeHost(host)
	if err != nil {
		return "", err
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(ascii, port)
	} else if strings.Contains(ascii, ":") {
		u.Host = "[" + ascii + "]"
	} else {
		u.Host = ascii
	}
	return u.String(), nil
}

// NormalizeHost lowercases a hostname and converts IDN labels to punycode.
// IP literals are returned unchanged.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return addr.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || ascii == "" {
		return "", fmt.Errorf("%w: bad hostname %q", ErrInvalidInput, host)
	}
	return ascii, nil
}

// ParseIP validates an IPv4 or IPv6 address
func ParseIP(raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q is not an IP address", ErrInvalidInput, raw)
	}
	return addr, nil
}

// doJSON runs req and decodes any JSON body of a 2xx response
func doJSON(client *http.Client, req *http.Request, service string) (json.RawMessage, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Service: service, Status: resp.StatusCode}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return nil, errors.Join(statusErr, fmt.Errorf("failed to read %s error body: %w", service, err))
		}
		statusErr.Body = string(bytes.TrimSpace(body))
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", service, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s returned invalid JSON", service)
	}
	return json.RawMessage(data), nil
}

func newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return req, nil
}
