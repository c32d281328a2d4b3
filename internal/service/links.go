package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"whatsgate/internal/constants"
	"whatsgate/internal/models"
	"whatsgate/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// linkPattern matches explicit scheme URLs plus bare www/subdomain hosts.
var linkPattern = regexp.MustCompile(`(?:https?|ftp|ws)://[^\s]+|(?:www\.|[a-zA-Z0-9-]+\.)[a-zA-Z0-9-.]+\.[^\s]{2,}`)

// ExtractLinks returns the unique links found in text, in order of first
// appearance.
func ExtractLinks(text string) []string {
	matches := linkPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var links []string
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		links = append(links, m)
	}
	return links
}

// LinkNotifier pushes extracted links to the crawler endpoint. The breaker
// keeps a dead endpoint from adding a connect timeout to every message.
type LinkNotifier struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *logrus.Logger
}

func NewLinkNotifier(cfg models.CrawlerConfig, logger *logrus.Logger) *LinkNotifier {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if cfg.TimeoutSec <= 0 {
		timeout = time.Duration(constants.DefaultCrawlerTimeoutSec) * time.Second
	}
	return &LinkNotifier{
		url:     cfg.URL,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("crawler", 5, 30*time.Second, logger),
		logger:  logger,
	}
}

// Push delivers one batch of links. Failures are reported but carry no
// consequence for the message that produced them.
func (n *LinkNotifier) Push(ctx context.Context, links []string) error {
	if n.url == "" || len(links) == 0 {
		return nil
	}

	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(map[string]string{
			"links": strings.Join(links, ","),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal links: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create crawler request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("crawler push failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("crawler push failed with status %d", resp.StatusCode)
		}
		return nil
	})
}
