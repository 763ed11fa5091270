package rbac

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
	// RoleService is for instances that load answer keys from this one.
	RoleService = "service"
)

const (
	PermTestView     = "test:view"
	PermTestManage   = "test:manage"
	PermTestKey      = "test:key" // full definitions, answers included
	PermSessionTake  = "session:take"
	PermScoreSave    = "score:save"
	PermScoreViewOwn = "score:view-own"
	PermScoreExport  = "score:export"
	PermUserApprove  = "user:approve"
	PermEventsRead   = "events:read"
)

var RolePermissions = map[string][]string{
	RoleStudent: {
		PermTestView,
		PermSessionTake,
		PermScoreSave,
		PermScoreViewOwn,
	},
	RoleService: {
		PermTestKey,
	},
	RoleAdmin: {
		"*", // everything
	},
}
