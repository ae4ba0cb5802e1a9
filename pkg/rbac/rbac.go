package rbac

// 权限常量
const (
	PermissionReadSync     = "sync:read"
	PermissionTriggerSync  = "sync:trigger"
	PermissionResetBreaker = "breaker:reset"
)

// 角色常量
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var rolePermissions = map[string][]string{
	RoleViewer: {
		PermissionReadSync,
	},
	RoleOperator: {
		PermissionReadSync,
		PermissionTriggerSync,
	},
	RoleAdmin: {
		PermissionReadSync,
		PermissionTriggerSync,
		PermissionResetBreaker,
	},
}

// HasPermission 未知角色没有任何权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 返回错误而不是布尔值，便于处理
func CheckPermission(subject, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Subject:    subject,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Subject    string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
