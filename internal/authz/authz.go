// Package authz decides whether a caller may run a queue operation on an account.
package authz

import (
	"github.com/jnst/trading-event-queue/internal/model"
)

// Operation is a queue operation subject to authorization.
type Operation string

// Operations guarded by the gate.
const (
	OpPush     Operation = "push"
	OpConsume  Operation = "consume"
	OpAck      Operation = "ack"
	OpHistory  Operation = "history"
	OpResponse Operation = "response"
	OpKeys     Operation = "keys"

	// OpAccountSave registers or re-owns an account; only root may run it.
	OpAccountSave Operation = "account.save"
)

type rule struct {
	roles        []model.Role
	ownerOnly    bool
	anyAuthRoles bool
}

// Root is handled before the table is consulted.
var table = map[Operation]rule{
	OpPush:     {roles: []model.Role{model.RoleProducer}, ownerOnly: true},
	OpResponse: {roles: []model.Role{model.RoleProducer}, ownerOnly: true},
	OpConsume:  {roles: []model.Role{model.RolePlatform}, ownerOnly: true},
	OpAck:      {roles: []model.Role{model.RolePlatform}, ownerOnly: true},
	OpHistory:  {anyAuthRoles: true, ownerOnly: true},
	OpKeys:     {anyAuthRoles: true},

	OpAccountSave: {},
}

// Allowed reports whether role may perform op given whether the caller owns the account.
func Allowed(op Operation, role model.Role, isOwner bool) bool {
	if role == model.RoleRoot {
		return true
	}

	r, ok := table[op]
	if !ok || !role.Valid() {
		return false
	}

	if r.ownerOnly && !isOwner {
		return false
	}

	if r.anyAuthRoles {
		return true
	}

	for _, allowed := range r.roles {
		if role == allowed {
			return true
		}
	}

	return false
}

// Authorize is Allowed expressed as an error: nil, ErrUnauthenticated when there is no
// caller, or ErrPermissionDenied.
func Authorize(op Operation, principal *model.Principal, account *model.Account) error {
	if principal == nil || principal.UserID == "" {
		return model.ErrUnauthenticated
	}

	isOwner := account != nil && account.UserID == principal.UserID
	if !Allowed(op, principal.Role, isOwner) {
		return model.ErrPermissionDenied
	}

	return nil
}
