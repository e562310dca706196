package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	arxivEndpoint      = "http://export.arxiv.org/api/query"
	arxivTimeout       = 20 * time.Second
	arxivDefaultResult = 5
	arxivMaxResults    = 20
	userAgentString    = "voxagent/0.1"
)

// ArxivSearch queries the arXiv Atom API for recent papers.
type ArxivSearch struct {
	Endpoint string
	Client   *http.Client
}

func NewArxivSearch(client *http.Client) *ArxivSearch {
	if client == nil {
		client = &http.Client{Timeout: arxivTimeout}
	}
	return &ArxivSearch{
		Endpoint: arxivEndpoint,
		Client:   client,
	}
}

func (s *ArxivSearch) Invoke(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(ArgString(args, "query"))
	if query == "" {
		return "", errors.New("missing argument: query")
	}
	limit, err := ArgInt(args, "max_results", arxivDefaultResult)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = arxivDefaultResult
	}
	if limit > arxivMaxResults {
		limit = arxivMaxResults
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprint(limit))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	fp := gofeed.NewParser()
	fp.Client = s.Client
	fp.UserAgent = userAgentString

	feed, err := fp.ParseURLWithContext(s.Endpoint+"?"+params.Encode(), ctx)
	if err != nil {
		return "", fmt.Errorf("arxiv query: %w", err)
	}
	if len(feed.Items) == 0 {
		return fmt.Sprintf("No papers found for: %s", query), nil
	}

	var sb strings.Builder
	for i, item := range feed.Items {
		if i >= limit {
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, oneLine(item.Title))
		if names := authorNames(item.Authors); names != "" {
			fmt.Fprintf(&sb, " (%s)", names)
		}
		if item.Link != "" {
			fmt.Fprintf(&sb, " - %s", item.Link)
		}
	}
	return sb.String(), nil
}

func authorNames(people []*gofeed.Person) string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		if p != nil && p.Name != "" {
			names = append(names, p.Name)
		}
	}
	if len(names) > 3 {
		names = append(names[:3], "et al.")
	}
	return strings.Join(names, ", ")
}

// arXiv titles are hard-wrapped inside the feed.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
