package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Options configure the networked blob backend.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Store talks to a simple blob endpoint: GET/PUT/HEAD on <base>/<file> with a
// bearer token. The whole JSON array travels on every write; the endpoint has
// no partial-append primitive, so Append is read-modify-write.
type Store struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New validates the options and returns the store.
func New(opts Options) (*Store, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("blob base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid blob base url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		token:      strings.TrimSpace(opts.Token),
	}, nil
}

func (s *Store) blobURL(file string) string {
	return s.baseURL + "/" + url.PathEscape(file)
}

func (s *Store) newRequest(ctx context.Context, method, file string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.blobURL(file), body)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Read fetches the file; a 404 reads as an empty ledger.
func (s *Store) Read(ctx context.Context, file string) ([]json.RawMessage, error) {
	req, err := s.newRequest(ctx, http.MethodGet, file, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching blob %s: %w", file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []json.RawMessage{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob read %s: unexpected status %d", file, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading blob body: %w", err)
	}
	if len(raw) == 0 {
		return []json.RawMessage{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding blob %s: %w", file, err)
	}
	return items, nil
}

// Write replaces the file contents with the given items.
func (s *Store) Write(ctx context.Context, file string, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding blob %s: %w", file, err)
	}
	req, err := s.newRequest(ctx, http.MethodPut, file, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("writing blob %s: %w", file, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("blob write %s: unexpected status %d", file, resp.StatusCode)
	}
	return nil
}

// Append adds one item to the end of the file.
func (s *Store) Append(ctx context.Context, file string, item json.RawMessage) error {
	if len(item) == 0 {
		return errors.New("item is required")
	}
	items, err := s.Read(ctx, file)
	if err != nil {
		return err
	}
	items = append(items, item)
	return s.Write(ctx, file, items)
}

// Exists reports whether the blob endpoint has the file.
func (s *Store) Exists(ctx context.Context, file string) (bool, error) {
	req, err := s.newRequest(ctx, http.MethodHead, file, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("probing blob %s: %w", file, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("blob head %s: unexpected status %d", file, resp.StatusCode)
	}
}

// Ping verifies the endpoint answers at all.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Exists(ctx, ".ping")
	return err
}
