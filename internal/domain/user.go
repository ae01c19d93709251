package domain

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin || r == RoleModerator
}

// Staff admin / moderator 可以进后台
func (r Role) Staff() bool { return r == RoleAdmin || r == RoleModerator }

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountDisabled  AccountStatus = "disabled"
)

type User struct {
	ID           string            `gorm:"primaryKey;size:32" json:"uid"`
	Email        string            `gorm:"uniqueIndex;size:191;not null" json:"email"`
	PasswordHash string            `gorm:"size:100;not null" json:"-"`
	FirstName    string            `gorm:"size:64" json:"firstName"`
	LastName     string            `gorm:"size:64" json:"lastName"`
	DisplayName  string            `gorm:"size:128" json:"displayName"`
	Phone        string            `gorm:"size:32" json:"phone,omitempty"`
	Role         Role              `gorm:"size:16;not null" json:"role"`
	Permissions  []string          `gorm:"serializer:json;type:text" json:"permissions"`
	Status       AccountStatus     `gorm:"size:16;not null" json:"status"`
	Preferences  datatypes.JSONMap `json:"preferences,omitempty"`
	LastLoginAt  *time.Time        `json:"lastLoginAt,omitempty"`
	LoginCount   int               `json:"loginCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

type Address struct {
	ID         string    `gorm:"primaryKey;size:32" json:"id"`
	UserID     string    `gorm:"index;size:32;not null" json:"userId"`
	Label      string    `gorm:"size:32" json:"label"`
	Recipient  string    `gorm:"size:128" json:"recipient,omitempty"` // 为空时用账号姓名
	Phone      string    `gorm:"size:32" json:"phone,omitempty"`
	Line1      string    `gorm:"size:191" json:"line1" validate:"required"`
	Line2      string    `gorm:"size:191" json:"line2,omitempty"`
	City       string    `gorm:"size:64" json:"city" validate:"required"`
	State      string    `gorm:"size:64" json:"state,omitempty"`
	PostalCode string    `gorm:"size:16" json:"postalCode"`
	Country    string    `gorm:"size:64" json:"country" validate:"required"`
	IsDefault  bool      `json:"isDefault"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Address) TableName() string { return "addresses" }

// FullName 显示名优先，其次姓 + 名
func (u *User) FullName() string {
	if n := strings.TrimSpace(u.DisplayName); n != "" {
		return n
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// AdminMember admins 集合：存在即表示有后台权限
type AdminMember struct {
	UserID    string    `gorm:"primaryKey;size:32" json:"userId"`
	Role      Role      `gorm:"size:16;not null" json:"role"`
	GrantedBy string    `gorm:"size:32" json:"grantedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (AdminMember) TableName() string { return "admins" }

type UserListQuery struct {
	Q      string
	Role   Role
	Status AccountStatus
	Offset int
	Limit  int
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, q UserListQuery) ([]User, int64, error)
	Update(ctx context.Context, u *User) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int64, error)

	SetAdmin(ctx context.Context, m *AdminMember) error
	RemoveAdmin(ctx context.Context, userID string) error
	FindAdmin(ctx context.Context, userID string) (*AdminMember, error)
}
