package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultWeatherTimeout = 10 * time.Second

// WeatherClient fetches a one-line weather report from a wttr.in style
// endpoint. The reply is plain text, already sized for a radio message.
type WeatherClient struct {
	baseURL string
	http    *http.Client
}

func NewWeatherClient(baseURL string) *WeatherClient {
	return &WeatherClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: defaultWeatherTimeout,
		},
	}
}

func (c *WeatherClient) Current(ctx context.Context, place string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?format=3", c.baseURL, url.PathEscape(place))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build weather request: %w", err)
	}
	req.Header.Set("User-Agent", "meshbridge")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather service returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return "", fmt.Errorf("read weather response: %w", err)
	}

	report := strings.TrimSpace(string(body))
	if report == "" {
		return "", fmt.Errorf("empty weather response for %q", place)
	}

	return report, nil
}
