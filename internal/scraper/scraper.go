package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Document is the cleaned text content of a single crawled page.
type Document struct {
	Content string
	Source  string
}

// minDocumentChars is the shortest extracted text worth indexing. Pages
// below this are usually redirects, error pages, or pure navigation.
const minDocumentChars = 100

// Crawler performs a bounded breadth-first crawl of a single domain.
type Crawler struct {
	client    *http.Client
	userAgent string
}

// New creates a crawler with a 10 second per-page timeout.
func New() *Crawler {
	return &Crawler{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}
}

// Crawl visits up to maxPages pages reachable from seedURL, never leaving
// the seed's host. Each URL is fetched at most once; fetch failures are
// logged and the crawl moves on. Crawl returns the documents collected so
// far if the context is cancelled mid-run.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, maxPages int) ([]Document, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("parse seed URL: %w", err)
	}
	if seed.Host == "" {
		return nil, fmt.Errorf("seed URL %q has no host", seedURL)
	}

	visited := make(map[string]bool)
	frontier := []string{normalize(seed)}
	var docs []Document

	for len(frontier) > 0 && len(visited) < maxPages {
		if err := ctx.Err(); err != nil {
			return docs, err
		}

		target := frontier[0]
		frontier = frontier[1:]
		if visited[target] {
			continue
		}
		visited[target] = true

		fmt.Printf("Scraping: %s (%d/%d)\n", target, len(visited), maxPages)

		text, links, err := c.fetchPage(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error scraping %s: %v\n", target, err)
			continue
		}

		if len(text) > minDocumentChars {
			docs = append(docs, Document{Content: text, Source: target})
		}

		for _, link := range links {
			if link.Host != seed.Host {
				continue
			}
			if u := normalize(link); !visited[u] {
				frontier = append(frontier, u)
			}
		}
	}

	return docs, nil
}

// fetchPage downloads one page and returns its visible text plus all
// resolved hyperlink targets.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (string, []*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	// Drop non-content elements before extracting text.
	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")

	base, err := url.Parse(pageURL)
	if err != nil {
		return text, nil, nil
	}

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		links = append(links, abs)
	})

	return text, links, nil
}

// normalize renders a URL without its fragment and with an explicit root
// path, so in-page anchors and bare-host forms don't count as distinct
// pages.
func normalize(u *url.URL) string {
	n := *u
	n.Fragment = ""
	if n.Path == "" {
		n.Path = "/"
	}
	return n.String()
}
