// Package talkapi implements the client for the remote messaging APIs:
// token exchange, per-member timeline fetch, and media download.
package talkapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nishinokaede/yunaMessage/internal/config"
)

// ErrUnknownGroup is returned for group ids without a configured profile.
var ErrUnknownGroup = errors.New("unknown group")

// MediaKind selects the download timeout budget; larger media gets more time.
type MediaKind int

const (
	MediaImage MediaKind = iota
	MediaAudio
	MediaVideo
)

// TimelineMessage is one element of the remote timeline response.
type TimelineMessage struct {
	State       string      `json:"state"`
	ID          json.Number `json:"id"`
	Type        string      `json:"type"` // text | picture | voice | video
	Text        string      `json:"text"`
	File        string      `json:"file"`
	PublishedAt string      `json:"published_at"`
}

// Client talks to the per-group remote APIs. It is safe for concurrent use.
type Client struct {
	profiles   map[string]Profile
	httpClient *http.Client
	cfg        config.ClientConfig
	logger     *slog.Logger
}

// New creates a Client with the given timeouts. A nil profiles map selects
// the production endpoints.
func New(cfg config.ClientConfig, logger *slog.Logger, profiles map[string]Profile) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Client{
		profiles:   profiles,
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logger.With("component", "talkapi"),
	}
}

// RefreshToken exchanges the group's refresh credential for a short-lived
// access token.
func (c *Client) RefreshToken(ctx context.Context, grp, refreshToken string) (string, error) {
	p, ok := c.profiles[grp]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGroup, grp)
	}

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return "", fmt.Errorf("failed to encode refresh request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TokenTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	c.setCommonHeaders(req, p)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request for group %q failed: %w", grp, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("token request for group %q returned status %d", grp, resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := decodeJSON(resp, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode token response for group %q: %w", grp, err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("no access_token in response for group %q", grp)
	}

	return parsed.AccessToken, nil
}

// Timeline fetches up to 100 messages for the member, ascending, published
// strictly from the since instant forward.
func (c *Client) Timeline(ctx context.Context, grp, memberID, accessToken string, since time.Time) ([]TimelineMessage, error) {
	p, ok := c.profiles[grp]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, grp)
	}

	createdFrom := since.UTC().Format("2006-01-02T15:04:05Z")
	endpoint := fmt.Sprintf("%s/v2/groups/%s/timeline?count=100&order=asc&created_from=%s",
		p.BaseURL, url.PathEscape(memberID), url.QueryEscape(createdFrom))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TimelineTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build timeline request: %w", err)
	}
	c.setCommonHeaders(req, p)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timeline request for member %q failed: %w", memberID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("timeline request for member %q returned status %d", memberID, resp.StatusCode)
	}

	var parsed struct {
		Messages []TimelineMessage `json:"messages"`
	}
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode timeline for member %q: %w", memberID, err)
	}

	return parsed.Messages, nil
}

// Download fetches a media file. The timeout scales with the media kind.
func (c *Client) Download(ctx context.Context, rawURL string, kind MediaKind) ([]byte, error) {
	var timeout time.Duration
	switch kind {
	case MediaVideo:
		timeout = c.cfg.VideoTimeout
	case MediaAudio:
		timeout = c.cfg.AudioTimeout
	default:
		timeout = c.cfg.ImageTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	return data, nil
}

func (c *Client) setCommonHeaders(req *http.Request, p Profile) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "ja-JP")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("TE", "gzip, deflate; q=0.5")
	req.Header.Set("X-Talk-App-ID", p.AppID)
	req.Header.Set("User-Agent", p.UserAgent)
}

// decodeJSON decodes the response body, transparently handling the gzip
// encoding we explicitly advertise in Accept-Encoding.
func decodeJSON(resp *http.Response, v any) error {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return json.NewDecoder(reader).Decode(v)
}
