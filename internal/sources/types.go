package sources

import "time"

// Deal is the first listing scraped from the deals page.
type Deal struct {
	Title string
	URL   string
	Price string

	FetchedAt time.Time
}
