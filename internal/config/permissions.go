package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maaaruch/tg-award-bot/internal/domain"
)

// PermissionsFile is the YAML shape of PERMISSIONS_FILE:
//
//	nominator: ["123456", "@alice"]
//	approver:  ["@bob"]
type PermissionsFile struct {
	Nominator []string `yaml:"nominator"`
	Approver  []string `yaml:"approver"`
}

func ReadPermissionsFile(path string) (PermissionsFile, error) {
	var pf PermissionsFile
	b, err := os.ReadFile(path)
	if err != nil {
		return pf, err
	}
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return pf, fmt.Errorf("parse %s: %w", path, err)
	}
	return pf, nil
}

// PermissionTable grants groups to Telegram users by numeric id or username.
type PermissionTable struct {
	groups map[domain.PermissionGroup]map[string]struct{}
}

func NewPermissionTable(nominators, approvers []string) *PermissionTable {
	p := &PermissionTable{groups: make(map[domain.PermissionGroup]map[string]struct{})}
	p.Add(domain.GroupNominator, nominators...)
	p.Add(domain.GroupApprover, approvers...)
	return p
}

// Permissions merges the env lists with PERMISSIONS_FILE, if set.
func (c Config) Permissions() (*PermissionTable, error) {
	p := NewPermissionTable(c.NominatorIDs, c.ApproverIDs)
	if c.PermissionsFile == "" {
		return p, nil
	}
	pf, err := ReadPermissionsFile(c.PermissionsFile)
	if err != nil {
		return nil, err
	}
	p.Add(domain.GroupNominator, pf.Nominator...)
	p.Add(domain.GroupApprover, pf.Approver...)
	return p, nil
}

func (p *PermissionTable) Add(group domain.PermissionGroup, members ...string) {
	set := p.groups[group]
	if set == nil {
		set = make(map[string]struct{})
		p.groups[group] = set
	}
	for _, m := range members {
		if k := memberKey(m); k != "" {
			set[k] = struct{}{}
		}
	}
}

func (p *PermissionTable) ActorHasPermission(a domain.Actor, group domain.PermissionGroup) bool {
	set := p.groups[group]
	if len(set) == 0 {
		return false
	}
	if _, ok := set[strconv.FormatInt(a.UserID, 10)]; ok && a.UserID != 0 {
		return true
	}
	if a.Username == "" {
		return false
	}
	_, ok := set[memberKey(a.Username)]
	return ok
}

func (p *PermissionTable) Size(group domain.PermissionGroup) int {
	return len(p.groups[group])
}

func memberKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}
