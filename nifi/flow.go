package nifi

import (
	"context"
	"net/url"
	"strconv"

	"github.com/BaSui01/nifimcp/types"
)

// BulletinQuery 公告查询条件
type BulletinQuery struct {
	After   int64  // 只返回 ID 大于该值的公告，0 表示不限
	GroupID string // 进程组过滤
	Limit   int
}

// GetAbout 读取 flow/about
func (c *Client) GetAbout(ctx context.Context) (Entity, error) {
	return c.Get(ctx, "flow/about", nil)
}

// GetBulletins 读取公告板
func (c *Client) GetBulletins(ctx context.Context, q BulletinQuery) (Entity, error) {
	query := url.Values{}
	if q.After > 0 {
		query.Set("after", strconv.FormatInt(q.After, 10))
	}
	if q.GroupID != "" {
		query.Set("groupId", q.GroupID)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	return c.Get(ctx, "flow/bulletin-board", query)
}

// SearchFlow 全局搜索组件
func (c *Client) SearchFlow(ctx context.Context, term string) (Entity, error) {
	if term == "" {
		return nil, types.NewError(types.ErrValidation, "search query is required")
	}
	return c.Get(ctx, "flow/search-results", url.Values{"q": {term}})
}

// GetProcessorTypes 列出可用处理器类型
func (c *Client) GetProcessorTypes(ctx context.Context) (Entity, error) {
	return c.Get(ctx, "flow/processor-types", nil)
}
