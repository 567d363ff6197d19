package model

// Role is the system role of an authenticated caller.
type Role string

const (
	// RoleRoot bypasses every authorization check.
	RoleRoot Role = "root"
	// RolePlatform consumes and acknowledges events.
	RolePlatform Role = "platform"
	// RoleProducer pushes events and reads their responses.
	RoleProducer Role = "producer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleRoot || r == RolePlatform || r == RoleProducer
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}

// Account is the trading account that scopes events. It is owned by an external
// relational entity; the queue only needs its owner.
type Account struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
}
