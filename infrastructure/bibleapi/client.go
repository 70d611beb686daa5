package bibleapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bible-study/domain/bible"

	"github.com/sirupsen/logrus"
)

// Client talks to the remote Bible study API. Plain request/response calls go
// through an http.Client with a blanket timeout; the streaming search path
// uses a separate client without one, guarded by an idle watchdog instead.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	credentials  bible.CredentialSource
	idleTimeout  time.Duration
}

func NewClient(baseURL string, credentials bible.CredentialSource, timeout, idleTimeout time.Duration) *Client {
	// Configure HTTP client with connection pooling
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    false,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		// No blanket timeout here: a generation stream may legitimately
		// outlive any fixed deadline. The idle watchdog covers stalls.
		streamClient: &http.Client{Transport: transport},
		credentials:  credentials,
		idleTimeout:  idleTimeout,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.credentials != nil {
		for name, value := range c.credentials.Headers() {
			req.Header.Set(name, value)
		}
	}
}

// StreamSearch issues a single POST to the streaming search endpoint and
// consumes the NDJSON response body incrementally, invoking onEvent once per
// decoded message in arrival order. A nil return means the stream ended
// cleanly; a non-nil return is a terminal transport or HTTP failure. The two
// outcomes are mutually exclusive. There is no retry: callers re-invoke on
// failure.
func (c *Client) StreamSearch(ctx context.Context, req *bible.SearchRequest, onEvent bible.StreamHandler[bible.StreamEvent]) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/search/stream", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(hreq)
	hreq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streamClient.Do(hreq)
	if err != nil {
		return fmt.Errorf("search stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Status is terminal; the body is not consumed as a stream.
		return fmt.Errorf("search stream: unexpected status %d", resp.StatusCode)
	}

	// Idle watchdog: cancel the request when no complete line arrives for
	// idleTimeout, so a stalled connection cannot hang the caller forever.
	var watchdog *time.Timer
	if c.idleTimeout > 0 {
		watchdog = time.AfterFunc(c.idleTimeout, cancel)
		defer watchdog.Stop()
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if watchdog != nil {
			watchdog.Reset(c.idleTimeout)
		}
		// The final line needs no trailing delimiter: process whatever
		// arrived before EOF.
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if derr := dispatchLine(trimmed, onEvent); derr != nil {
				return derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("stream read: %w", ctx.Err())
			}
			return fmt.Errorf("stream read: %w", err)
		}
	}
}

// dispatchLine decodes one NDJSON line and forwards it. A malformed line is
// logged and dropped so a single corrupt message cannot terminate a
// long-running generation; only handler errors propagate.
func dispatchLine(line []byte, onEvent bible.StreamHandler[bible.StreamEvent]) error {
	var msg bible.StreamMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		logrus.WithError(err).WithField("line", string(line)).Warn("Dropping malformed stream line")
		return nil
	}

	switch msg.Type {
	case bible.StreamTypeResults:
		var results bible.SearchResponse
		if err := json.Unmarshal(msg.Data, &results); err != nil {
			logrus.WithError(err).Warn("Dropping results message with malformed payload")
			return nil
		}
		return onEvent(bible.StreamEvent{Type: bible.StreamTypeResults, Results: &results})
	case bible.StreamTypeToken:
		return onEvent(bible.StreamEvent{Type: bible.StreamTypeToken, Token: msg.Content})
	case bible.StreamTypeError:
		return onEvent(bible.StreamEvent{Type: bible.StreamTypeError, Err: msg.Error})
	default:
		// Unknown message types are ignored for forward compatibility.
		return nil
	}
}

// Search is the non-streaming convenience path: one attempt, blanket timeout.
func (c *Client) Search(ctx context.Context, req *bible.SearchRequest) (*bible.SearchResponse, error) {
	var out bible.SearchResponse
	if err := c.postJSON(ctx, "/api/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetVerse(ctx context.Context, book string, chapter, verse int, translations []string, includeOriginal bool) (*bible.VerseDetail, error) {
	path := fmt.Sprintf("/api/verse/%s/%d/%d", url.PathEscape(book), chapter, verse)
	query := url.Values{}
	if len(translations) > 0 {
		query.Set("translations", strings.Join(translations, ","))
	}
	query.Set("include_original", strconv.FormatBool(includeOriginal))

	var out bible.VerseDetail
	if err := c.getJSON(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetChapter(ctx context.Context, book string, chapter int, translations []string) (*bible.ChapterResponse, error) {
	path := fmt.Sprintf("/api/chapter/%s/%d", url.PathEscape(book), chapter)
	query := url.Values{}
	if len(translations) > 0 {
		query.Set("translations", strings.Join(translations, ","))
	}

	var out bible.ChapterResponse
	if err := c.getJSON(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTranslations(ctx context.Context, language string) (*bible.TranslationsResponse, error) {
	query := url.Values{}
	if language != "" {
		query.Set("language", language)
	}

	var out bible.TranslationsResponse
	if err := c.getJSON(ctx, "/api/translations", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListBooks(ctx context.Context, testament, genre string) (*bible.BooksResponse, error) {
	query := url.Values{}
	if testament != "" {
		query.Set("testament", testament)
	}
	if genre != "" {
		query.Set("genre", genre)
	}

	var out bible.BooksResponse
	if err := c.getJSON(ctx, "/api/books", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchThemes(ctx context.Context, req *bible.ThemeRequest) (*bible.ThemeResponse, error) {
	var out bible.ThemeResponse
	if err := c.postJSON(ctx, "/api/themes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*bible.HealthResponse, error) {
	var out bible.HealthResponse
	if err := c.getJSON(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(hreq)

	return c.do(hreq, out)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	hreq, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(hreq)

	return c.do(hreq, out)
}

func (c *Client) do(hreq *http.Request, out any) error {
	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"path":   hreq.URL.Path,
			"body":   string(body),
		}).Error("Bible API error")
		return fmt.Errorf("bible api error: status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
