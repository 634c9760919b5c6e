package authz

import (
	"github.com/fleetsync/internal/constants"
)

// RoleMobileApp 离线同步接口的公共角色，顾客与司机继承，管理员不继承
const RoleMobileApp = "mobile_app"

// RoleSeed 预置角色：继承关系与直接放行的路由
type RoleSeed struct {
	Role     string
	Inherits []string
	Routes   []Permission
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: RoleMobileApp,
			Routes: []Permission{
				{Path: "/sync/pending", Method: "POST"},
				{Path: "/sync/status", Method: "GET"},
				{Path: "/sync/ledger", Method: "GET"},
			},
		},
		{Role: constants.UserRoleCustomer, Inherits: []string{RoleMobileApp}},
		{Role: constants.UserRoleDriver, Inherits: []string{RoleMobileApp}},
	}
}

// BootstrapBuiltinRoles 写入预置角色，重复执行不会产生重复策略
func (s *Service) BootstrapBuiltinRoles() error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, seed := range BuiltinRoleSeeds() {
		for _, route := range seed.Routes {
			if err := s.Allow(seed.Role, route.Path, route.Method); err != nil {
				return err
			}
		}
		for _, parent := range seed.Inherits {
			if err := s.Inherit(seed.Role, parent); err != nil {
				return err
			}
		}
	}
	return nil
}
