package frontapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// pagedServer 按 page 参数返回 tags，最后一页不带 next
func pagedServer(t *testing.T, pages int, failOn int) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}
		if page == failOn {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("expected limit=2 on page %d, got %q", page, r.URL.RawQuery)
		}
		next := ""
		if page < pages {
			next = fmt.Sprintf("%s/tags?limit=2&page=%d", server.URL, page+1)
		}
		fmt.Fprintf(w, `{"_pagination":{"next":%q},"_results":[{"id":"tag_%da","name":"a"},{"id":"tag_%db","name":"b"}]}`, next, page, page)
	}))
	return server
}

func TestPaginatorAllFollowsNextLinks(t *testing.T) {
	server := pagedServer(t, 3, 0)
	defer server.Close()

	tags, res := newTestClient(server.URL, nil).Tags().All(context.Background())
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(tags) != 6 || res.Pages != 3 || res.Items != 6 {
		t.Fatalf("expected 6 tags over 3 pages, got %d tags %+v", len(tags), res)
	}
	if tags[5].ID != "tag_3b" {
		t.Fatalf("expected last tag tag_3b, got %s", tags[5].ID)
	}
}

func TestPaginatorStopsOnErrorAndKeepsFetched(t *testing.T) {
	server := pagedServer(t, 3, 2)
	defer server.Close()

	tags, res := newTestClient(server.URL, nil).Tags().All(context.Background())
	if res.Err == nil {
		t.Fatalf("expected stopping error to be reported")
	}
	if len(tags) != 2 || res.Pages != 1 {
		t.Fatalf("expected first page kept, got %d tags %+v", len(tags), res)
	}
}

func TestPaginatorMaxPages(t *testing.T) {
	server := pagedServer(t, 5, 0)
	defer server.Close()

	tags, res := newTestClient(server.URL, nil).Tags().WithMaxPages(2).All(context.Background())
	if len(tags) != 4 || !res.Truncated || res.Err != nil {
		t.Fatalf("expected 4 tags and truncation, got %d %+v", len(tags), res)
	}
}

func TestPaginatorEachStopsWhenCallbackDeclines(t *testing.T) {
	server := pagedServer(t, 5, 0)
	defer server.Close()

	seen := 0
	res := newTestClient(server.URL, nil).Tags().Each(context.Background(), func(page []Tag) (bool, error) {
		seen += len(page)
		return false, nil
	})
	if seen != 2 || res.Pages != 1 {
		t.Fatalf("expected a single page, got seen=%d %+v", seen, res)
	}
}

func TestPaginatorStopsOnRepeatedNextLink(t *testing.T) {
	var server *httptest.Server
	hits := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, `{"_pagination":{"next":%q},"_results":[{"id":"tag_%d","name":"a"}]}`, server.URL+"/tags?limit=2&page=2", hits)
	}))
	defer server.Close()

	tags, res := newTestClient(server.URL, nil).Tags().All(context.Background())
	if !errors.Is(res.Err, ErrPaginationLoop) {
		t.Fatalf("expected pagination loop error, got %v", res.Err)
	}
	if len(tags) != 2 || res.Pages != 2 || hits != 2 {
		t.Fatalf("expected two pages before stopping, got %d tags %+v hits=%d", len(tags), res, hits)
	}
}
