package app

import (
	"strings"

	"coptic-quiz-service/internal/domain"
)

// Policy decides what an actor may administer. Full administrators come from
// configuration; org admins carry their scope on their profile.
type Policy struct {
	fullAdmins map[string]struct{}
}

func NewPolicy(adminEmails []string) *Policy {
	p := &Policy{fullAdmins: make(map[string]struct{}, len(adminEmails))}
	for _, e := range adminEmails {
		e = normalizeEmail(e)
		if e != "" {
			p.fullAdmins[e] = struct{}{}
		}
	}
	return p
}

func (p *Policy) IsFullAdmin(a domain.Actor) bool {
	if a.Email == "" {
		return false
	}
	_, ok := p.fullAdmins[normalizeEmail(a.Email)]
	return ok
}

// IsAdmin reports whether the actor has any admin authority.
func (p *Policy) IsAdmin(a domain.Actor) bool {
	return p.IsFullAdmin(a) || a.AdminOrganizationID != ""
}

// AuthorizeScope never widens: an org admin is limited to their own organization.
func (p *Policy) AuthorizeScope(a domain.Actor, scope domain.Scope) error {
	if p.IsFullAdmin(a) {
		return nil
	}
	if !scope.IsGlobal() && a.AdminOrganizationID != "" && scope.OrganizationID == a.AdminOrganizationID {
		return nil
	}
	return domain.ErrForbidden
}

func (p *Policy) AuthorizeOrganization(a domain.Actor, organizationID string) error {
	if organizationID == "" {
		return domain.ErrForbidden
	}
	return p.AuthorizeScope(a, domain.OrganizationScope(organizationID))
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
