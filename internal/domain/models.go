package domain

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Nomination is the only persisted workflow entity. Everything except Status
// and ResolvedBy is fixed at creation.
type Nomination struct {
	ID         string
	Nominator  string
	UserIDs    []string
	Users      []string
	Medal      string
	Reason     string
	Status     Status
	ResolvedBy string
}

// Clone returns a deep copy so callers never share slices with the store.
func (n Nomination) Clone() Nomination {
	c := n
	c.UserIDs = append([]string(nil), n.UserIDs...)
	c.Users = append([]string(nil), n.Users...)
	return c
}

func (n Nomination) Pending() bool {
	return n.Status == StatusPending
}

type PermissionGroup string

const (
	GroupNominator PermissionGroup = "nominator"
	GroupApprover  PermissionGroup = "approver"
)

// Actor is whoever issued a command or pressed a button.
type Actor struct {
	UserID   int64
	Username string
	Name     string
}

// DisplayName is what gets recorded as nominator / resolver.
func (a Actor) DisplayName() string {
	if a.Username != "" {
		return a.Username
	}
	if a.Name != "" {
		return a.Name
	}
	return strconv.FormatInt(a.UserID, 10)
}

type Member struct {
	ChatID      int64
	UserID      int64
	Username    string
	DisplayName string
}

type Role struct {
	ID     int64
	ChatID int64
	Name   string
}

type MemberRole struct {
	RoleName     string
	NominationID string
	GrantedAt    time.Time
}
