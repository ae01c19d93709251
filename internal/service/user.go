package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"golang.org/x/time/rate"

	"storefront/internal/core/apperr"
	"storefront/internal/core/auth"
	"storefront/internal/core/validate"
	"storefront/internal/domain"
	"storefront/pkg/utils"
)

type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName" validate:"max=64"`
	LastName    string `json:"lastName" validate:"max=64"`
	DisplayName string `json:"displayName" validate:"max=128"`
}

type AuthResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
	IsNew bool         `json:"isNew"`
}

type ProfileInput struct {
	FirstName   *string        `json:"firstName" validate:"omitempty,max=64"`
	LastName    *string        `json:"lastName" validate:"omitempty,max=64"`
	DisplayName *string        `json:"displayName" validate:"omitempty,max=128"`
	Phone       *string        `json:"phone" validate:"omitempty,max=32"`
	Preferences map[string]any `json:"preferences"`
}

// UserService 注册 / 登录 / 资料，以及后台的用户管理
type UserService struct {
	users domain.UserRepository
	jwt   *auth.JWTer
	log   *zap.Logger
	now   func() time.Time

	// 登录失败限流（按邮箱）
	mu       sync.Mutex
	failures map[string]*rate.Limiter
}

func NewUserService(l *zap.Logger, users domain.UserRepository, j *auth.JWTer) *UserService {
	if l == nil {
		l = zap.NewNop()
	}
	return &UserService{users: users, jwt: j, log: l, now: time.Now, failures: map[string]*rate.Limiter{}}
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	email := normEmail(in.Email)
	if !validate.Email(email) {
		return nil, apperr.Auth(apperr.AuthInvalidEmail)
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password)
	if errors.Is(err, utils.ErrWeakPassword) {
		return nil, apperr.Auth(apperr.AuthWeakPassword)
	}
	if err != nil {
		return nil, apperr.Classify(err)
	}
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if existing != nil {
		return nil, apperr.Auth(apperr.AuthEmailInUse)
	}

	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = strings.TrimSpace(in.FirstName + " " + in.LastName)
	}
	if display == "" {
		display = email[:strings.IndexByte(email, '@')]
	}
	now := s.now().UTC()
	u := &domain.User{
		ID:           utils.NewID(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		DisplayName:  display,
		Role:         domain.RoleCustomer,
		Permissions:  []string{},
		Status:       domain.AccountActive,
		Preferences:  datatypes.JSONMap{},
		LastLoginAt:  &now,
		LoginCount:   1,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// 并发注册同一邮箱
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Auth(apperr.AuthEmailInUse)
		}
		return nil, apperr.Classify(err)
	}
	tok, err := s.jwt.Issue(u.ID, u.Email, string(u.Role))
	if err != nil {
		return nil, apperr.Classify(err)
	}
	s.log.Info("user signed up", zap.String("uid", u.ID))
	return &AuthResult{Token: tok, User: u, IsNew: true}, nil
}

func (s *UserService) limiter(email string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.failures[email]
	if !ok {
		// 5 次失败后每 12 秒恢复一次
		lim = rate.NewLimiter(rate.Every(12*time.Second), 5)
		s.failures[email] = lim
	}
	return lim
}

// SignIn 校验账号密码；admins 里的成员以其后台角色签发 token
func (s *UserService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normEmail(email)
	if !validate.Email(email) {
		return nil, apperr.Auth(apperr.AuthInvalidEmail)
	}
	lim := s.limiter(email)
	if lim.Tokens() < 1 {
		return nil, apperr.Auth(apperr.AuthTooManyRequests)
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if u == nil {
		return nil, apperr.Auth(apperr.AuthUserNotFound)
	}
	if !utils.CheckPassword(password, u.PasswordHash) {
		lim.Allow()
		return nil, apperr.Auth(apperr.AuthWrongPassword)
	}
	if u.Status != domain.AccountActive {
		return nil, apperr.Auth(apperr.AuthUserDisabled)
	}

	role, err := s.effectiveRole(ctx, u)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("record login failed", zap.String("uid", u.ID), zap.Error(err))
	} else {
		u.LastLoginAt = &now
		u.LoginCount++
	}
	tok, err := s.jwt.Issue(u.ID, u.Email, string(role))
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return &AuthResult{Token: tok, User: u}, nil
}

// effectiveRole admins 表优先；不在表里的按 customer 处理
func (s *UserService) effectiveRole(ctx context.Context, u *domain.User) (domain.Role, error) {
	m, err := s.users.FindAdmin(ctx, u.ID)
	if err != nil {
		return "", apperr.Classify(err)
	}
	if m != nil && m.Role.Staff() {
		return m.Role, nil
	}
	return domain.RoleCustomer, nil
}

// AdminRole 后台鉴权用：每次请求都回查 admins，token 里的角色只是提示
func (s *UserService) AdminRole(ctx context.Context, uid string) (domain.Role, bool, error) {
	m, err := s.users.FindAdmin(ctx, uid)
	if err != nil {
		return "", false, apperr.Classify(err)
	}
	if m == nil || !m.Role.Staff() {
		return "", false, nil
	}
	return m.Role, true, nil
}

func (s *UserService) Me(ctx context.Context, uid string) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if u == nil {
		return nil, apperr.Auth(apperr.AuthUserNotFound)
	}
	return u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, uid string, in ProfileInput) (*domain.User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.Me(ctx, uid)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&u.FirstName, in.FirstName)
	set(&u.LastName, in.LastName)
	set(&u.DisplayName, in.DisplayName)
	set(&u.Phone, in.Phone)
	if in.Preferences != nil {
		if u.Preferences == nil {
			u.Preferences = datatypes.JSONMap{}
		}
		for k, v := range in.Preferences {
			if v == nil {
				delete(u.Preferences, k)
				continue
			}
			u.Preferences[k] = v
		}
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, apperr.Classify(err)
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context, q domain.UserListQuery) ([]domain.User, int64, error) {
	us, total, err := s.users.List(ctx, q)
	if err != nil {
		return nil, 0, apperr.Classify(err)
	}
	return us, total, nil
}

// SetRole 改角色并同步 admins 成员关系
func (s *UserService) SetRole(ctx context.Context, actor, uid string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperr.Validation("role must be one of [customer admin moderator]")
	}
	if actor == uid && role != domain.RoleAdmin {
		return nil, apperr.Forbidden("You cannot remove your own admin role.")
	}
	u, err := s.Me(ctx, uid)
	if err != nil {
		return nil, err
	}
	u.Role = role
	if err := s.users.Update(ctx, u); err != nil {
		return nil, apperr.Classify(err)
	}
	if role.Staff() {
		err = s.users.SetAdmin(ctx, &domain.AdminMember{UserID: uid, Role: role, GrantedBy: actor})
	} else {
		err = s.users.RemoveAdmin(ctx, uid)
	}
	if err != nil {
		return nil, apperr.Classify(err)
	}
	s.log.Info("user role changed", zap.String("uid", uid), zap.String("role", string(role)), zap.String("by", actor))
	return u, nil
}

func (s *UserService) SetStatus(ctx context.Context, actor, uid string, st domain.AccountStatus) (*domain.User, error) {
	switch st {
	case domain.AccountActive, domain.AccountSuspended, domain.AccountDisabled:
	default:
		return nil, apperr.Validation("status must be one of [active suspended disabled]")
	}
	if actor == uid && st != domain.AccountActive {
		return nil, apperr.Forbidden("You cannot disable your own account.")
	}
	u, err := s.Me(ctx, uid)
	if err != nil {
		return nil, err
	}
	u.Status = st
	if err := s.users.Update(ctx, u); err != nil {
		return nil, apperr.Classify(err)
	}
	return u, nil
}

// BootstrapAdmin 首次部署时把指定邮箱设为管理员（命令行使用）
func (s *UserService) BootstrapAdmin(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if u == nil {
		return nil, apperr.Auth(apperr.AuthUserNotFound)
	}
	return s.SetRole(ctx, "bootstrap", u.ID, domain.RoleAdmin)
}

func (s *UserService) Count(ctx context.Context) (int64, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return 0, apperr.Classify(err)
	}
	return n, nil
}
