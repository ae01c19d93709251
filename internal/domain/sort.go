package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
	SortPrice     SortField = "price"
	SortName      SortField = "name"
	SortStock     SortField = "stock"
)

var sortAliases = map[string]SortField{
	"created_at": SortCreatedAt, "createdat": SortCreatedAt,
	"updated_at": SortUpdatedAt, "updatedat": SortUpdatedAt,
	"price": SortPrice, "name": SortName, "stock": SortStock,
}

// ProductSort 单字段排序；ID 作为并列时的次序键
type ProductSort struct {
	Field SortField `form:"sortBy" json:"sortBy,omitempty"`
	Desc  bool      `form:"desc" json:"desc,omitempty"`
}

// DefaultSort 最新在前
var DefaultSort = ProductSort{Field: SortCreatedAt, Desc: true}

func ParseSortField(s string) (SortField, bool) {
	f, ok := sortAliases[strings.ToLower(strings.TrimSpace(s))]
	return f, ok
}

func (s ProductSort) Normalize() ProductSort {
	if s.Field == "" {
		return DefaultSort
	}
	if f, ok := ParseSortField(string(s.Field)); ok {
		s.Field = f
		return s
	}
	return DefaultSort
}

// Compare 按排序字段比较，相等时按 ID，返回 -1/0/1（已考虑方向）
func (s ProductSort) Compare(a, b *Product) int {
	c := compareField(s.Field, a, b)
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if s.Desc {
		return -c
	}
	return c
}

func compareField(f SortField, a, b *Product) int {
	switch f {
	case SortPrice:
		return cmpFloat(a.Price, b.Price)
	case SortName:
		return strings.Compare(a.Name, b.Name)
	case SortStock:
		return cmpFloat(float64(a.Stock), float64(b.Stock))
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Cursor 键集分页位置：排序字段值 + ID
type Cursor struct {
	Field SortField `json:"f"`
	Value string    `json:"v"`
	ID    string    `json:"id"`
}

var ErrBadCursor = errors.New("invalid cursor")

func CursorFor(s ProductSort, p *Product) *Cursor {
	return &Cursor{Field: s.Field, Value: fieldString(s.Field, p), ID: p.ID}
}

func fieldString(f SortField, p *Product) string {
	switch f {
	case SortPrice:
		return strconv.FormatFloat(p.Price, 'f', -1, 64)
	case SortName:
		return p.Name
	case SortStock:
		return strconv.Itoa(p.Stock)
	case SortUpdatedAt:
		return p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	default:
		return p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
}

// TypedValue 把游标值还原成排序列对应的类型（供 SQL 参数使用）
func (c *Cursor) TypedValue() (any, error) {
	switch c.Field {
	case SortPrice:
		return strconv.ParseFloat(c.Value, 64)
	case SortStock:
		return strconv.Atoi(c.Value)
	case SortName:
		return c.Value, nil
	case SortCreatedAt, SortUpdatedAt:
		return time.Parse(time.RFC3339Nano, c.Value)
	}
	return nil, ErrBadCursor
}

// Before 判断 p 是否排在游标之前（或正好是游标本身）
func (c *Cursor) Before(s ProductSort, p *Product) bool {
	bound := Product{ID: c.ID}
	switch c.Field {
	case SortPrice:
		bound.Price, _ = strconv.ParseFloat(c.Value, 64)
	case SortName:
		bound.Name = c.Value
	case SortStock:
		bound.Stock, _ = strconv.Atoi(c.Value)
	case SortUpdatedAt:
		bound.UpdatedAt, _ = time.Parse(time.RFC3339Nano, c.Value)
	default:
		bound.CreatedAt, _ = time.Parse(time.RFC3339Nano, c.Value)
	}
	return s.Compare(p, &bound) <= 0
}

func (c *Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeCursor(token string, s ProductSort) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrBadCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return nil, ErrBadCursor
	}
	// 换了排序字段，旧游标作废
	if c.Field != s.Field {
		return nil, ErrBadCursor
	}
	if _, err := c.TypedValue(); err != nil {
		return nil, ErrBadCursor
	}
	return &c, nil
}
