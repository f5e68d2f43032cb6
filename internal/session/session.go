// Package session provides the HTTP session used to retrieve remote
// requirements files, with credentials sourced from ~/.netrc.
package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/git-lfs/go-netrc/netrc"
)

// maxFileSize caps the size of a fetched requirements file.
const maxFileSize = 8 << 20

// Session is a configured HTTP client for requirements-file retrieval.
type Session struct {
	// Netrc contains credentials for private index hosts.
	Netrc *netrc.Netrc
	// TrustedHosts lists hosts for which TLS verification is skipped,
	// mirroring pip's --trusted-host.
	TrustedHosts []string

	client   *http.Client
	insecure *http.Client
}

// New creates a Session with credentials from the user's .netrc.
// A missing .netrc is not an error.
func New(trustedHosts []string) (*Session, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	netrcFile, err := netrc.ParseFile(filepath.Join(home, ".netrc"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("parsing netrc: %w", err)
	}
	if netrcFile == nil {
		netrcFile = &netrc.Netrc{}
	}

	return &Session{
		Netrc:        netrcFile,
		TrustedHosts: trustedHosts,
		client:       &http.Client{Timeout: 30 * time.Second},
		insecure: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}, nil
}

// Get fetches rawURL and returns the response body. Basic auth is added
// when the host has a .netrc entry.
func (s *Session) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if machine := s.Netrc.FindMachine(u.Hostname(), ""); machine != nil {
		req.SetBasicAuth(machine.Login, machine.Password)
	}

	client := s.client
	if s.isTrusted(u.Host) {
		client = s.insecure
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}

func (s *Session) isTrusted(host string) bool {
	for _, trusted := range s.TrustedHosts {
		if host == trusted {
			return true
		}
		// entries may be given without a port
		if h, _, err := splitHostPort(host); err == nil && h == trusted {
			return true
		}
	}
	return false
}

func splitHostPort(host string) (string, string, error) {
	u := url.URL{Host: host}
	h := u.Hostname()
	if h == "" {
		return "", "", fmt.Errorf("no host in %q", host)
	}
	return h, u.Port(), nil
}
