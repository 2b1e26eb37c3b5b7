package dto

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// PageQuery 分页参数, 按 id 升序
type PageQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1"`
}

func (p *PageQuery) GetPage() int {
	return max(p.Page, 1)
}

// GetPageSize 超过上限时截断
func (p *PageQuery) GetPageSize() int {
	if p.PageSize < 1 {
		return defaultPageSize
	}
	return min(p.PageSize, maxPageSize)
}

func (p *PageQuery) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// IDParam 路径中的记录 id
type IDParam struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

// PageResponse 分页响应
type PageResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func NewPageResponse[T any](items []T, total int64, page, pageSize int) *PageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &PageResponse[T]{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
}
