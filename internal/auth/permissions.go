package auth

import "github.com/iliyamo/food-delivery-api/internal/model"

// Operation names a protected API operation.  Handlers are registered against
// an Operation and the permission table below decides which roles may invoke
// it, replacing ad-hoc role lists scattered across routes.
type Operation string

const (
	OpLogout           Operation = "auth.logout"
	OpLogoutAll        Operation = "auth.logout_all_sessions"
	OpMe               Operation = "auth.me"
	OpListSessions     Operation = "auth.list_sessions"
	OpRequestPhoneCode Operation = "auth.request_phone_code"
	OpVerifyPhone      Operation = "auth.verify_phone"
	OpChangeUserRole   Operation = "admin.change_user_role"
	OpBanUser          Operation = "admin.ban_user"
	OpUnbanUser        Operation = "admin.unban_user"
)

// permissions maps each operation to the set of roles allowed to perform it.
// Checked in one place by Allowed; adding an operation without an entry here
// locks it to everyone, which is the safe default.
var permissions = map[Operation][]model.Role{
	OpLogout:           model.AllRoles(),
	OpLogoutAll:        model.AllRoles(),
	OpMe:               model.AllRoles(),
	OpListSessions:     model.AllRoles(),
	OpRequestPhoneCode: model.AllRoles(),
	OpVerifyPhone:      model.AllRoles(),
	OpChangeUserRole:   {model.RoleManager, model.RoleAdmin},
	OpBanUser:          {model.RoleManager, model.RoleAdmin},
	OpUnbanUser:        {model.RoleManager, model.RoleAdmin},
}

// Allowed reports whether role may perform op.
func Allowed(op Operation, role model.Role) bool {
	for _, r := range permissions[op] {
		if r == role {
			return true
		}
	}
	return false
}
