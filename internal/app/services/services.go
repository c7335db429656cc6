package services

import (
	"context"

	"github.com/osis-edu/osis/internal/app/models"
)

// Permission names evaluated by the injected role policy. The core never
// encodes the policy itself; it attributes refusals to these names.
const (
	PermEditLearningUnit      = "can_edit_learningunit"
	PermCreateLearningUnit    = "can_create_learningunit"
	PermDeleteLearningUnit    = "can_delete_learningunit"
	PermProposeLearningUnit   = "can_propose_learningunit"
	PermModifyEndYearProposal = "can_modify_end_year_by_proposal"
	PermModifyByProposal      = "can_modify_learningunit_by_proposal"
	PermCancelProposal        = "can_cancel_proposal"
	PermConsolidateProposal   = "can_consolidate_proposal"
	PermUpdatePedagogy        = "can_update_learningunit_pedagogy"
	PermUpdateAchievement     = "can_update_learningunit_achievement"
	PermEditProposal          = "can_edit_learning_unit_proposal"
	PermForceState            = "can_force_proposal_state"
)

// Target is the object a permission predicate inspects. EntityID is the
// requirement entity the target belongs to, resolved by the calling service.
type Target struct {
	Snapshot *models.LearningUnitYear
	Proposal *models.Proposal
	EntityID int64
}

// Decision is the outcome of one predicate evaluation.
type Decision struct {
	Perm    string
	Allowed bool
}

// PermissionChecker is the role-policy bundle injected into the core. An
// error return means the predicate itself failed, not that it refused.
type PermissionChecker interface {
	Check(ctx context.Context, perm string, person *models.Person, target Target) (Decision, error)
}
