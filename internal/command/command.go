// Package command parses the wire envelope into typed commands and routes
// them to the operation handlers.
package command

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/iotfleet/usergate/internal/users"
)

var (
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidArgument      = errors.New("invalid argument")
)

// Operation names accepted on the wire.
const (
	OpListUsers        = "listUsers"
	OpInviteUser       = "inviteUser"
	OpEditUser         = "editUser"
	OpAddUser          = "addUser"
	OpDeleteUser       = "deleteUser"
	OpEnableUser       = "enableUser"
	OpDisableUser      = "disableUser"
	OpGetUserByID      = "getUserByID"
	OpListGroupMembers = "listGroupMembers"
)

// Envelope is the wire form: an operation selector plus six positional
// arguments whose meaning depends on the operation. Args are strings except
// arg4, which carries a string array where used.
type Envelope struct {
	FunctionSelection string `json:"functionSelection" mapstructure:"functionSelection"`
	Arg1              any    `json:"arg1" mapstructure:"arg1"`
	Arg2              any    `json:"arg2" mapstructure:"arg2"`
	Arg3              any    `json:"arg3" mapstructure:"arg3"`
	Arg4              any    `json:"arg4" mapstructure:"arg4"`
	Arg5              any    `json:"arg5" mapstructure:"arg5"`
	Arg6              any    `json:"arg6" mapstructure:"arg6"`
}

// Command is one parsed operation.
type Command interface {
	Operation() string
}

type ListUsers struct{}

type InviteUser struct {
	Email   string
	Profile users.Profile
}

type EditUser struct {
	UserID  string
	Profile users.Profile
}

type AddUser struct {
	Profile users.Profile
}

type DeleteUser struct {
	UserID string
}

type SetUserEnabled struct {
	UserID  string
	Enabled bool
}

type GetUserByID struct {
	UserID string
}

type ListGroupMembers struct {
	GroupID string
}

func (ListUsers) Operation() string        { return OpListUsers }
func (InviteUser) Operation() string       { return OpInviteUser }
func (EditUser) Operation() string         { return OpEditUser }
func (AddUser) Operation() string          { return OpAddUser }
func (DeleteUser) Operation() string       { return OpDeleteUser }
func (GetUserByID) Operation() string      { return OpGetUserByID }
func (ListGroupMembers) Operation() string { return OpListGroupMembers }

func (c SetUserEnabled) Operation() string {
	if c.Enabled {
		return OpEnableUser
	}
	return OpDisableUser
}

// Parse maps an envelope onto a typed command. Argument positions are fixed
// per operation; a missing required argument or a type mismatch yields
// ErrInvalidArgument, an unknown selector ErrUnsupportedOperation.
func Parse(env Envelope) (Command, error) {
	switch env.FunctionSelection {
	case OpListUsers:
		return ListUsers{}, nil

	case OpInviteUser:
		email, err := requireString("arg5 (email)", env.Arg5)
		if err != nil {
			return nil, err
		}
		profile, err := profileFrom(env.Arg1, env.Arg2, env.Arg3, env.Arg4, env.Arg6)
		if err != nil {
			return nil, err
		}
		return InviteUser{Email: email, Profile: profile}, nil

	case OpEditUser:
		id, err := requireString("arg1 (user id)", env.Arg1)
		if err != nil {
			return nil, err
		}
		profile, err := profileFrom(env.Arg2, env.Arg3, env.Arg5, env.Arg4, env.Arg6)
		if err != nil {
			return nil, err
		}
		return EditUser{UserID: id, Profile: profile}, nil

	case OpAddUser:
		profile, err := profileFrom(env.Arg1, env.Arg2, env.Arg5, env.Arg4, env.Arg3)
		if err != nil {
			return nil, err
		}
		if profile.Email == "" {
			return nil, fmt.Errorf("%w: arg5 (email) is required", ErrInvalidArgument)
		}
		return AddUser{Profile: profile}, nil

	case OpDeleteUser:
		id, err := requireString("arg1 (user id)", env.Arg1)
		if err != nil {
			return nil, err
		}
		return DeleteUser{UserID: id}, nil

	case OpEnableUser, OpDisableUser:
		id, err := requireString("arg1 (user id)", env.Arg1)
		if err != nil {
			return nil, err
		}
		return SetUserEnabled{UserID: id, Enabled: env.FunctionSelection == OpEnableUser}, nil

	case OpGetUserByID:
		id, err := requireString("arg1 (user id)", env.Arg1)
		if err != nil {
			return nil, err
		}
		return GetUserByID{UserID: id}, nil

	case OpListGroupMembers:
		id, err := requireString("arg1 (group id)", env.Arg1)
		if err != nil {
			return nil, err
		}
		return ListGroupMembers{GroupID: id}, nil

	case "":
		return nil, fmt.Errorf("%w: functionSelection is required", ErrInvalidArgument)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, env.FunctionSelection)
	}
}

// profileFrom decodes profile fields from their envelope positions:
// first name, last name, email, groups, phone.
func profileFrom(first, last, email, groups, phone any) (users.Profile, error) {
	var p users.Profile
	var err error
	if p.FirstName, err = decodeString("first name", first); err != nil {
		return p, err
	}
	if p.LastName, err = decodeString("last name", last); err != nil {
		return p, err
	}
	if p.Email, err = decodeString("email", email); err != nil {
		return p, err
	}
	if p.Groups, err = decodeStrings("groups", groups); err != nil {
		return p, err
	}
	if p.Phone, err = decodeString("phone", phone); err != nil {
		return p, err
	}
	return p, nil
}

func requireString(name string, v any) (string, error) {
	s, err := decodeString(name, v)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	return s, nil
}

func decodeString(name string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	var s string
	if err := mapstructure.Decode(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgument, name)
	}
	return s, nil
}

func decodeStrings(name string, v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	var out []string
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalidArgument, name)
	}
	return out, nil
}
