package frontapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// ErrPaginationLoop 远端返回了已经访问过的 next 链接
var ErrPaginationLoop = errors.New("frontapi: pagination loop")

// Page 集合接口的一页：结果加可选的下一页链接
type Page[T any] struct {
	Pagination struct {
		Next string `json:"next"`
	} `json:"_pagination"`
	Results []T `json:"_results"`
}

// Result 一次分页遍历的结果。远端失败不会作为 error 返回，而是放在 Err 中，
// 调用方拿到的是失败之前已获取的数据。
type Result struct {
	Pages     int
	Items     int
	Truncated bool // 因 maxPages 停止，仍有下一页
	Err       error
}

// Paginator 遍历一个游标分页集合
type Paginator[T any] struct {
	client   *Client
	path     string
	query    url.Values
	maxPages int
}

func NewPaginator[T any](client *Client, path string, query url.Values) *Paginator[T] {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if client.pageLimit > 0 && q.Get("limit") == "" {
		q.Set("limit", strconv.Itoa(client.pageLimit))
	}
	return &Paginator[T]{client: client, path: path, query: q}
}

// WithMaxPages 限制最多获取的页数，0 表示不限
func (p *Paginator[T]) WithMaxPages(n int) *Paginator[T] {
	p.maxPages = n
	return p
}

// Each 逐页回调；fn 返回 false 或 error 时停止
func (p *Paginator[T]) Each(ctx context.Context, fn func(page []T) (bool, error)) Result {
	var res Result
	next := p.path
	query := p.query
	seen := map[string]struct{}{}

	for next != "" {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		if p.maxPages > 0 && res.Pages >= p.maxPages {
			res.Truncated = true
			return res
		}

		var page Page[T]
		if err := p.client.GetJSON(ctx, next, query, &page); err != nil {
			p.client.logger.Error("Failed to fetch page, stopping pagination",
				zap.String("path", p.path),
				zap.Int("pages_fetched", res.Pages),
				zap.Error(err),
			)
			res.Err = err
			return res
		}
		res.Pages++
		res.Items += len(page.Results)

		more, err := fn(page.Results)
		if err != nil {
			res.Err = err
			return res
		}
		if !more {
			return res
		}

		// next 链接已带全部查询参数
		next, query = page.Pagination.Next, nil
		if _, dup := seen[next]; dup {
			p.client.logger.Error("Pagination returned a repeated next link, stopping",
				zap.String("path", p.path),
				zap.String("next", next),
				zap.Int("pages_fetched", res.Pages),
			)
			res.Err = fmt.Errorf("%w: %s", ErrPaginationLoop, next)
			return res
		}
		seen[next] = struct{}{}
	}
	return res
}

// All 获取全部页面
func (p *Paginator[T]) All(ctx context.Context) ([]T, Result) {
	var items []T
	res := p.Each(ctx, func(page []T) (bool, error) {
		items = append(items, page...)
		return true, nil
	})
	return items, res
}
