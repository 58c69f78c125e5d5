package domain

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

type Pagination struct {
	Page     int `validate:"min=1"`
	PageSize int `validate:"min=1,max=100"`
}

func (p Pagination) Limit() int {
	return p.PageSize
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
