package models

// Person is the acting user as seen by the core: identity plus the role and
// entity links the role policy predicates evaluate. Authentication and the
// full user account live outside the core.
type Person struct {
	ID        int64      `json:"id" db:"id"`
	GlobalID  string     `json:"globalId" db:"global_id"`
	FirstName string     `json:"firstName" db:"first_name"`
	LastName  string     `json:"lastName" db:"last_name"`
	Email     string     `json:"email" db:"email"`
	Roles     []RoleType `json:"roles"`
	// LinkedEntityIDs are the entities the person manages, including their
	// descendants at evaluation time.
	LinkedEntityIDs []int64 `json:"linkedEntityIds"`
}

// HasRole reports whether the person carries the given role.
func (p *Person) HasRole(role RoleType) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsCentralManager reports whether the person manages proposals centrally.
func (p *Person) IsCentralManager() bool { return p.HasRole(RoleCentralManager) }

// IsFacultyManager reports whether the person manages at faculty level.
func (p *Person) IsFacultyManager() bool { return p.HasRole(RoleFacultyManager) }

// IsLinkedTo reports whether the person is attached to the given entity.
func (p *Person) IsLinkedTo(entityID int64) bool {
	for _, id := range p.LinkedEntityIDs {
		if id == entityID {
			return true
		}
	}
	return false
}
