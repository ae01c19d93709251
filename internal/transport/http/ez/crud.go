package ez

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/core/apperr"
	"storefront/pkg/utils"
)

// Hook
type CrudHooks[T any] struct {
	BeforeCreate func(c *gin.Context, m *T) error
	BeforeUpdate func(c *gin.Context, m *T) error
	AfterSave    func(c *gin.Context, m *T) error          // 创建 / 更新成功之后
	ScopeList    func(c *gin.Context, q *gorm.DB) *gorm.DB // 自定义筛选/排序
	AfterGet     func(c *gin.Context, m *T)
}

// CrudConfig 按登录用户隔离的通用 CRUD（地址簿这类归属明确的小表）
type CrudConfig[T any] struct {
	DB    *gorm.DB
	Group *gin.RouterGroup // 已鉴权分组（能拿 userId）
	Path  string
	New   func() *T

	Hooks CrudHooks[T]

	AllowCreate bool
	AllowList   bool
	AllowGet    bool
	AllowUpdate bool
	AllowDelete bool

	IDField    string // 默认 "ID"
	OwnerField string // 默认优先 "OwnerID"，其次 "UserID"/"UID"

	IDGen func() string // 默认 utils.NewID

	// 列表排序（SQL 片段），为空则按 ID DESC
	OrderBy string // 例如 "created_at DESC"
}

// 反射 & 工具
func (c *CrudConfig[T]) idFieldCandidates() []string {
	if c.IDField != "" {
		return []string{c.IDField, "ID", "Id"}
	}
	return []string{"ID", "Id"}
}

func (c *CrudConfig[T]) ownerFieldCandidates() []string {
	if c.OwnerField != "" {
		return []string{c.OwnerField, "OwnerID", "UserID", "UID"}
	}
	return []string{"OwnerID", "UserID", "UID"}
}

// stringField 返回第一个匹配候选名的 string 字段
func stringField(obj any, candidates []string) (*string, string, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr {
		return nil, "", false
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return nil, "", false
	}
	t := v.Type()
	for _, cand := range candidates {
		f, ok := t.FieldByName(cand)
		// 未导出字段跳过
		if !ok || f.PkgPath != "" || f.Type.Kind() != reflect.String {
			continue
		}
		fv := v.FieldByIndex(f.Index)
		if fv.CanSet() {
			return fv.Addr().Interface().(*string), f.Name, true
		}
	}
	return nil, "", false
}

func writeStringField(obj any, candidates []string, val string) bool {
	p, _, ok := stringField(obj, candidates)
	if ok {
		*p = val
	}
	return ok
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// Crud 注册（无需模型实现任何接口）；所有查询都带 owner 条件
func Crud[T any](cfg CrudConfig[T]) {
	// 默认放开所有操作
	if !cfg.AllowCreate && !cfg.AllowGet && !cfg.AllowList && !cfg.AllowUpdate && !cfg.AllowDelete {
		cfg.AllowCreate, cfg.AllowList, cfg.AllowGet, cfg.AllowUpdate, cfg.AllowDelete = true, true, true, true, true
	}
	if cfg.IDGen == nil {
		cfg.IDGen = utils.NewID
	}

	idNames := cfg.idFieldCandidates()
	ownerNames := cfg.ownerFieldCandidates()
	_, idField, okID := stringField(cfg.New(), idNames)
	_, ownerField, okOwner := stringField(cfg.New(), ownerNames)
	if !okID || !okOwner {
		panic("ez.Crud: model needs string id and owner fields")
	}
	idCol := cfg.DB.NamingStrategy.ColumnName("", idField)
	ownerCol := cfg.DB.NamingStrategy.ColumnName("", ownerField)

	owned := func(c *gin.Context) (*gorm.DB, string, bool) {
		uid := c.GetString(CtxUserID)
		if uid == "" {
			Fail(c, apperr.Auth(apperr.AuthMissingToken))
			return nil, "", false
		}
		return cfg.DB.WithContext(c).Model(cfg.New()).Where(clause.Eq{Column: clause.Column{Name: ownerCol}, Value: uid}), uid, true
	}
	findOne := func(q *gorm.DB, id string) (*T, error) {
		m := cfg.New()
		err := q.Where(clause.Eq{Column: clause.Column{Name: idCol}, Value: id}).First(m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("not found")
		}
		if err != nil {
			return nil, apperr.Classify(err)
		}
		return m, nil
	}

	// Create
	if cfg.AllowCreate {
		cfg.Group.POST(cfg.Path, func(c *gin.Context) {
			_, uid, ok := owned(c)
			if !ok {
				return
			}
			m := cfg.New()
			if err := c.ShouldBindJSON(m); err != nil {
				Fail(c, badBind(err))
				return
			}
			// 客户端给的 ID 一律忽略
			writeStringField(m, idNames, cfg.IDGen())
			writeStringField(m, ownerNames, uid)

			if cfg.Hooks.BeforeCreate != nil {
				if err := cfg.Hooks.BeforeCreate(c, m); err != nil {
					Fail(c, err)
					return
				}
			}
			if err := cfg.DB.WithContext(c).Create(m).Error; err != nil {
				Fail(c, err)
				return
			}
			if cfg.Hooks.AfterSave != nil {
				if err := cfg.Hooks.AfterSave(c, m); err != nil {
					Fail(c, err)
					return
				}
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			OK(c, m)
		})
	}

	// List（我的）
	if cfg.AllowList {
		cfg.Group.GET(cfg.Path, func(c *gin.Context) {
			q, _, ok := owned(c)
			if !ok {
				return
			}
			page := atoiDefault(c.Query("page"), 1)
			size := atoiDefault(c.Query("size"), 20)
			if size > 100 {
				size = 20
			}
			if cfg.Hooks.ScopeList != nil {
				q = cfg.Hooks.ScopeList(c, q)
			}

			var total int64
			if err := q.Count(&total).Error; err != nil {
				Fail(c, err)
				return
			}
			if cfg.OrderBy != "" {
				q = q.Order(cfg.OrderBy)
			} else {
				q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: idCol}, Desc: true})
			}
			items := []T{}
			if err := q.Limit(size).Offset((page - 1) * size).Find(&items).Error; err != nil {
				Fail(c, err)
				return
			}
			if cfg.Hooks.AfterGet != nil {
				for i := range items {
					cfg.Hooks.AfterGet(c, &items[i])
				}
			}
			OK(c, gin.H{"list": items, "total": total, "page": page, "size": size})
		})
	}

	// Get
	if cfg.AllowGet {
		cfg.Group.GET(cfg.Path+"/:id", func(c *gin.Context) {
			q, _, ok := owned(c)
			if !ok {
				return
			}
			m, err := findOne(q, c.Param("id"))
			if err != nil {
				Fail(c, err)
				return
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			OK(c, m)
		})
	}

	// Update：整条覆盖，ID / Owner / 创建时间不可改
	if cfg.AllowUpdate {
		cfg.Group.PUT(cfg.Path+"/:id", func(c *gin.Context) {
			q, uid, ok := owned(c)
			if !ok {
				return
			}
			id := c.Param("id")
			if _, err := findOne(q, id); err != nil {
				Fail(c, err)
				return
			}

			in := cfg.New()
			if err := c.ShouldBindJSON(in); err != nil {
				Fail(c, badBind(err))
				return
			}
			writeStringField(in, idNames, id)
			writeStringField(in, ownerNames, uid)

			if cfg.Hooks.BeforeUpdate != nil {
				if err := cfg.Hooks.BeforeUpdate(c, in); err != nil {
					Fail(c, err)
					return
				}
			}
			err := cfg.DB.WithContext(c).Model(cfg.New()).
				Where(clause.Eq{Column: clause.Column{Name: idCol}, Value: id}).
				Where(clause.Eq{Column: clause.Column{Name: ownerCol}, Value: uid}).
				Select("*").Omit(idCol, ownerCol, "created_at").
				Updates(in).Error
			if err != nil {
				Fail(c, err)
				return
			}
			if cfg.Hooks.AfterSave != nil {
				if err := cfg.Hooks.AfterSave(c, in); err != nil {
					Fail(c, err)
					return
				}
			}
			m, err := findOne(cfg.DB.WithContext(c).Model(cfg.New()), id)
			if err != nil {
				Fail(c, err)
				return
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			OK(c, m)
		})
	}

	// Delete
	if cfg.AllowDelete {
		cfg.Group.DELETE(cfg.Path+"/:id", func(c *gin.Context) {
			q, _, ok := owned(c)
			if !ok {
				return
			}
			id := strings.TrimSpace(c.Param("id"))
			res := q.Where(clause.Eq{Column: clause.Column{Name: idCol}, Value: id}).Delete(cfg.New())
			if res.Error != nil {
				Fail(c, res.Error)
				return
			}
			if res.RowsAffected == 0 {
				Fail(c, apperr.NotFound("not found"))
				return
			}
			OK(c, gin.H{"id": id})
		})
	}
}
