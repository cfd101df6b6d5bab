package command

import (
	"context"
	"fmt"

	"github.com/iotfleet/usergate/internal/users"
)

// Dispatcher routes each parsed command to exactly one operation handler.
type Dispatcher struct {
	svc *users.Service
}

// NewDispatcher creates a dispatcher over the given service.
func NewDispatcher(svc *users.Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

// Dispatch executes cmd and returns its response payload.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (any, error) {
	switch c := cmd.(type) {
	case ListUsers:
		return d.svc.ListUsers(ctx)
	case InviteUser:
		return d.svc.InviteUser(ctx, c.Email, c.Profile)
	case EditUser:
		return d.svc.EditUser(ctx, c.UserID, c.Profile)
	case AddUser:
		return d.svc.AddUser(ctx, c.Profile)
	case DeleteUser:
		return d.svc.DeleteUser(ctx, c.UserID)
	case SetUserEnabled:
		return d.svc.SetEnabled(ctx, c.UserID, c.Enabled)
	case GetUserByID:
		return d.svc.GetUserByID(ctx, c.UserID)
	case ListGroupMembers:
		return d.svc.ListGroupMembers(ctx, c.GroupID)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedOperation, cmd)
	}
}
