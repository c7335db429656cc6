package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/services"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// Policy is the default role policy: central managers may do everything,
// faculty managers act within their linked entities and only while a proposal
// sits at faculty level. The core consumes it through the PermissionChecker
// interface, so deployments can swap it out.
type Policy struct{}

// NewPolicy creates the default Policy.
func NewPolicy() *Policy {
	return &Policy{}
}

// Permissions reserved to central managers regardless of entity links.
var centralOnly = map[string]bool{
	services.PermConsolidateProposal: true,
	services.PermForceState:          true,
}

// Check evaluates one permission predicate for a person against a target.
func (p *Policy) Check(ctx context.Context, perm string, person *models.Person, target services.Target) (services.Decision, error) {
	if person == nil {
		return services.Decision{Perm: perm, Allowed: false}, nil
	}

	if person.IsCentralManager() {
		return services.Decision{Perm: perm, Allowed: true}, nil
	}

	if !person.IsFacultyManager() || centralOnly[perm] {
		return services.Decision{Perm: perm, Allowed: false}, nil
	}

	// Faculty managers only act inside the entities they manage.
	if target.EntityID != 0 && !person.IsLinkedTo(target.EntityID) {
		logger.Debug().
			Int64("person_id", person.ID).
			Int64("entity_id", target.EntityID).
			Str("perm", perm).
			Msg("Faculty manager not linked to target entity")
		return services.Decision{Perm: perm, Allowed: false}, nil
	}

	// A faculty manager loses the hand once the proposal left faculty level.
	if target.Proposal != nil && target.Proposal.State != models.StateFaculty {
		return services.Decision{Perm: perm, Allowed: false}, nil
	}

	return services.Decision{Perm: perm, Allowed: true}, nil
}

// CachedChecker memoizes predicate evaluations per (person, perm, target) for
// the lifetime of one request or batch. Wrap a fresh one around the policy
// for every unit of work; it never invalidates.
type CachedChecker struct {
	inner services.PermissionChecker

	mu    sync.Mutex
	cache map[cacheKey]services.Decision
}

type cacheKey struct {
	personID int64
	perm     string
	targetID int64
}

// NewCachedChecker wraps a checker with memoization.
func NewCachedChecker(inner services.PermissionChecker) *CachedChecker {
	return &CachedChecker{
		inner: inner,
		cache: map[cacheKey]services.Decision{},
	}
}

// Check returns the cached decision when the same predicate was already
// evaluated, and consults the wrapped checker otherwise.
func (c *CachedChecker) Check(ctx context.Context, perm string, person *models.Person, target services.Target) (services.Decision, error) {
	var personID int64
	if person != nil {
		personID = person.ID
	}
	key := cacheKey{personID: personID, perm: perm, targetID: targetKey(target)}

	c.mu.Lock()
	decision, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return decision, nil
	}

	decision, err := c.inner.Check(ctx, perm, person, target)
	if err != nil {
		return services.Decision{}, fmt.Errorf("error evaluating %s: %w", perm, err)
	}

	c.mu.Lock()
	c.cache[key] = decision
	c.mu.Unlock()
	return decision, nil
}

func targetKey(target services.Target) int64 {
	switch {
	case target.Proposal != nil:
		return target.Proposal.ID
	case target.Snapshot != nil:
		return target.Snapshot.ID
	default:
		return target.EntityID
	}
}
