// Package users holds the account data model.
package users

import "errors"

// ErrMissingUsername is returned by Validate for accounts without a username.
var ErrMissingUsername = errors.New("username is required")

// User is an account record. Optional fields are nil when unset.
type User struct {
	Username   string   `json:"username"`
	Email      *string  `json:"email,omitempty"`
	FullName   *string  `json:"full_name,omitempty"`
	Disabled   *bool    `json:"disabled,omitempty"`
	UserGroups []string `json:"user_groups,omitempty"`
}

// CurrentGroup returns the first of the user's groups, or false when the
// user belongs to none.
func (u User) CurrentGroup() (string, bool) {
	if len(u.UserGroups) == 0 {
		return "", false
	}
	return u.UserGroups[0], true
}

// IsDisabled treats an unset Disabled field as enabled.
func (u User) IsDisabled() bool {
	return u.Disabled != nil && *u.Disabled
}

func (u User) Validate() error {
	if u.Username == "" {
		return ErrMissingUsername
	}
	return nil
}
