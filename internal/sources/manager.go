package sources

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const (
	DefaultDealsURL = "https://www.pricebefore.com/deals/"
	DefaultTimeout  = 10 * time.Second

	userAgent = "Mozilla/5.0 (compatible; DealGateBot/1.0; +https://github.com/Armin-kho/deal-gate-bot)"
)

// ErrIncomplete means a deal card was found but lacked a title, link or price.
var ErrIncomplete = errors.New("deal card is missing fields")

// Manager fetches the deals page and extracts the first deal card.
type Manager struct {
	url    string
	client *http.Client
}

func NewManager(dealsURL string, timeout time.Duration) *Manager {
	if dealsURL == "" {
		dealsURL = DefaultDealsURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		url: dealsURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FirstDeal returns the first deal on the page. ok is false when the page has
// no deal cards at all.
func (m *Manager) FirstDeal(ctx context.Context) (Deal, bool, error) {
	body, err := httpGet(ctx, m.client, m.url)
	if err != nil {
		return Deal{}, false, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Deal{}, false, errors.Wrap(err, "parse deals page")
	}
	return ParseFirstDeal(doc)
}

// ParseFirstDeal reads the first div.deal-item: its first h3, first link and
// span.price.
func ParseFirstDeal(doc *goquery.Document) (Deal, bool, error) {
	card := doc.Find("div.deal-item").First()
	if card.Length() == 0 {
		return Deal{}, false, nil
	}
	title := strings.TrimSpace(card.Find("h3").First().Text())
	href, hasHref := card.Find("a").First().Attr("href")
	price := card.Find("span.price").First()

	if card.Find("h3").Length() == 0 || !hasHref || price.Length() == 0 {
		return Deal{}, false, ErrIncomplete
	}
	return Deal{
		Title:     title,
		URL:       strings.TrimSpace(href),
		Price:     strings.TrimSpace(price.Text()),
		FetchedAt: time.Now(),
	}, true, nil
}

func httpGet(ctx context.Context, client *http.Client, urlStr string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch deals page")
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, errors.Errorf("deals page status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, 4<<20), resp.Body}, nil
}
