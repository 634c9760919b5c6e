package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	apiV1Prefix     = "/api/v1"
	casbinTableName = "casbin_rule"
	rolePrefix      = "role:"
)

// 角色继承走 g，路由参数走 keyMatch2，方法 * 表示全部
const roleRouteModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// ErrUnavailable 授权服务未初始化
var ErrUnavailable = errors.New("authz service unavailable")

// Permission 角色可访问的一条路由
type Permission struct {
	Role   string `json:"role"`
	Path   string `json:"path"`
	Method string `json:"method"`
}

// Service 路由级角色授权，策略持久化在 casbin_rule 表
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务并加载已有策略
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("authz db is nil")
	}
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter: %w", err)
	}
	m, err := model.NewModelFromString(roleRouteModel)
	if err != nil {
		return nil, fmt.Errorf("parse authz model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy: %w", err)
	}
	return &Service{enforcer: enforcer}, nil
}

func (s *Service) ready() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}
	return nil
}

// EnforceRole 判断角色能否以 method 访问 path
func (s *Service) EnforceRole(role, path, method string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	subject, err := NormalizeRole(role)
	if err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, NormalizeObject(path), normalizeMethod(method))
}

// Allow 为角色放行一条路由，已存在时不重复写入
func (s *Service) Allow(role, path, method string) error {
	if err := s.ready(); err != nil {
		return err
	}
	subject, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	method = normalizeMethod(method)
	if method == "" {
		return errors.New("method is required")
	}
	if _, err := s.enforcer.AddPolicy(subject, NormalizeObject(path), method); err != nil {
		return fmt.Errorf("allow %s %s for %s: %w", method, path, subject, err)
	}
	return nil
}

// Inherit 让 role 拥有 parent 的全部路由
func (s *Service) Inherit(role, parent string) error {
	if err := s.ready(); err != nil {
		return err
	}
	child, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	base, err := NormalizeRole(parent)
	if err != nil {
		return err
	}
	if child == base {
		return fmt.Errorf("role %s cannot inherit itself", child)
	}
	if _, err := s.enforcer.AddGroupingPolicy(child, base); err != nil {
		return fmt.Errorf("link %s to %s: %w", child, base, err)
	}
	return nil
}

// Permissions 角色直接或继承得到的全部路由，按路径排序
func (s *Service) Permissions(role string) ([]Permission, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	subject, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetImplicitPermissionsForUser(subject)
	if err != nil {
		return nil, fmt.Errorf("load permissions for %s: %w", subject, err)
	}
	perms := make([]Permission, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		perms = append(perms, Permission{Role: rule[0], Path: rule[1], Method: rule[2]})
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Path != perms[j].Path {
			return perms[i].Path < perms[j].Path
		}
		return perms[i].Method < perms[j].Method
	})
	return perms, nil
}

// NormalizeRole 统一为 role: 前缀，空白替换为下划线
func NormalizeRole(role string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(role), rolePrefix)
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		return "", errors.New("role is required")
	}
	return rolePrefix + strings.ToLower(name), nil
}

// NormalizeObject 去掉 /api/v1 前缀，保证以 / 开头
func NormalizeObject(object string) string {
	path := strings.TrimSpace(object)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == apiV1Prefix {
		return "/"
	}
	if strings.HasPrefix(path, apiV1Prefix+"/") {
		return path[len(apiV1Prefix):]
	}
	return path
}

func normalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
