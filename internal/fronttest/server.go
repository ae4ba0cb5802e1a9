// Package fronttest 提供内存版远端 API，供各包测试使用。
package fronttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Object 一个远端 JSON 对象
type Object = map[string]any

// Server 按路径返回分页集合，默认每页 PageSize 条
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	PageSize    int
	collections map[string][]Object
	singles     map[string]Object
	failures    map[string]int
	hits        map[string]int
}

func NewServer() *Server {
	s := &Server{
		PageSize:    50,
		collections: make(map[string][]Object),
		singles:     make(map[string]Object),
		failures:    make(map[string]int),
		hits:        make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetCollection 设置某个集合路径的全部条目，如 "/tags"、"/conversations/cnv_1/messages"
func (s *Server) SetCollection(path string, items ...Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[path] = items
}

// SetObject 设置单个对象路径，如 "/conversations/cnv_1"
func (s *Server) SetObject(path string, obj Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singles[path] = obj
}

// Fail 让某个路径返回指定状态码
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// Recover 撤销 Fail，路径恢复正常响应
func (s *Server) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// Hits 某路径被请求的次数
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := r.URL.Path
	s.hits[path]++

	if status, ok := s.failures[path]; ok {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"_error":{"status":%d}}`, status)
		return
	}
	if obj, ok := s.singles[path]; ok {
		writeJSON(w, obj)
		return
	}
	items, ok := s.collections[path]
	if !ok {
		if isSingle(path) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"_error":{"status":404,"title":"Not found"}}`)
			return
		}
		items = nil
	}
	if path == "/events" {
		items = filterEvents(items, r)
	}

	limit := s.PageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l < limit {
		limit = l
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("page_token"))
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	page := []Object{}
	if offset < len(items) {
		page = items[offset:end]
	}

	next := ""
	if end < len(items) {
		q := r.URL.Query()
		q.Set("page_token", strconv.Itoa(end))
		next = s.URL + path + "?" + q.Encode()
	}
	writeJSON(w, Object{
		"_pagination": Object{"next": nullable(next)},
		"_results":    page,
	})
}

func isSingle(path string) bool {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	return len(parts) == 2
}

func filterEvents(items []Object, r *http.Request) []Object {
	q := r.URL.Query()
	types := make(map[string]bool)
	for _, t := range q["q[types][]"] {
		types[t] = true
	}
	after, hasAfter := parseFloat(q.Get("q[after]"))
	before, hasBefore := parseFloat(q.Get("q[before]"))

	out := make([]Object, 0, len(items))
	for _, ev := range items {
		if len(types) > 0 && !types[fmt.Sprint(ev["type"])] {
			continue
		}
		at, _ := ev["emitted_at"].(float64)
		if hasAfter && at < after {
			continue
		}
		if hasBefore && at > before {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
