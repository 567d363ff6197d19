package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jnst/trading-event-queue/internal/model"
)

func TestAllowed_DecisionTable(t *testing.T) {
	type row struct {
		op      Operation
		role    model.Role
		isOwner bool
		want    bool
	}

	rows := []row{
		{OpPush, model.RoleProducer, true, true},
		{OpPush, model.RoleProducer, false, false},
		{OpPush, model.RolePlatform, true, false},
		{OpPush, model.RoleRoot, false, true},

		{OpResponse, model.RoleProducer, true, true},
		{OpResponse, model.RolePlatform, true, false},

		{OpConsume, model.RolePlatform, true, true},
		{OpConsume, model.RolePlatform, false, false},
		{OpConsume, model.RoleProducer, true, false},
		{OpConsume, model.RoleRoot, false, true},

		{OpAck, model.RolePlatform, true, true},
		{OpAck, model.RoleProducer, true, false},

		{OpHistory, model.RoleProducer, true, true},
		{OpHistory, model.RolePlatform, true, true},
		{OpHistory, model.RolePlatform, false, false},

		{OpKeys, model.RoleProducer, false, true},
		{OpKeys, model.Role("guest"), false, false},

		{OpAccountSave, model.RoleRoot, false, true},
		{OpAccountSave, model.RolePlatform, true, false},
		{OpAccountSave, model.RoleProducer, true, false},

		{Operation("drop"), model.RolePlatform, true, false},
	}

	for _, r := range rows {
		assert.Equal(t, r.want, Allowed(r.op, r.role, r.isOwner), "%s/%s/owner=%v", r.op, r.role, r.isOwner)
	}
}

func TestAuthorize(t *testing.T) {
	account := &model.Account{ID: 1, UserID: "7"}

	assert.ErrorIs(t, Authorize(OpPush, nil, account), model.ErrUnauthenticated)
	assert.NoError(t, Authorize(OpPush, &model.Principal{UserID: "7", Role: model.RoleProducer}, account))
	assert.ErrorIs(t, Authorize(OpPush, &model.Principal{UserID: "8", Role: model.RoleProducer}, account),
		model.ErrPermissionDenied)
	assert.NoError(t, Authorize(OpConsume, &model.Principal{UserID: "1", Role: model.RoleRoot}, nil))
	assert.ErrorIs(t, Authorize(OpHistory, &model.Principal{UserID: "7", Role: model.RolePlatform}, nil),
		model.ErrPermissionDenied)
}
