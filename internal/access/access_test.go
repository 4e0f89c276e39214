package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tzscheduler/internal/access"
	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
)

func TestCanAccess(t *testing.T) {
	ev := &model.Event{ID: "e1", Users: []string{"a", "b"}}

	tests := []struct {
		name string
		p    model.Principal
		want bool
	}{
		{"participant a", model.Principal{UserID: "a"}, true},
		{"participant b", model.Principal{UserID: "b"}, true},
		{"stranger", model.Principal{UserID: "c"}, false},
		{"admin stranger", model.Principal{UserID: "c", IsAdmin: true}, true},
		{"anonymous", model.Principal{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, access.CanAccess(tt.p, ev))
		})
	}
}

func TestRequire(t *testing.T) {
	ev := &model.Event{Users: []string{"a"}}

	assert.NoError(t, access.Require(model.Principal{UserID: "a"}, ev, "this event"))

	err := access.Require(model.Principal{UserID: "z"}, ev, "event logs")
	var fe *apperr.ForbiddenError
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, "Forbidden: access denied to event logs", err.Error())
}

func TestCanList(t *testing.T) {
	me := model.Principal{UserID: "a"}
	assert.True(t, access.CanList(me, model.Single("a")))
	assert.True(t, access.CanList(me, model.Many{"a", "a"}))
	assert.False(t, access.CanList(me, model.Many{"a", "b"}))
	assert.False(t, access.CanList(me, model.Single("b")))
	assert.True(t, access.CanList(model.Principal{UserID: "x", IsAdmin: true}, model.Many{"a", "b"}))
}
