package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// ErrProposalExists is returned when the snapshot already carries a proposal.
var ErrProposalExists = errors.New("snapshot already has a proposal")

// ProposalRepository handles proposal workflow rows. The initial-data capture
// is stored as a JSONB blob.
type ProposalRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository(db DBTX) *ProposalRepository {
	return &ProposalRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var proposalColumns = []string{
	"id", "uuid", "learning_unit_year_id", "type", "state", "previous_state",
	"initial_data", "author_id", "entity_id", "folder_id", "changed",
}

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	p := &models.Proposal{}
	var initialData []byte
	err := row.Scan(&p.ID, &p.UUID, &p.LearningUnitYearID, &p.Type, &p.State,
		&p.PreviousState, &initialData, &p.AuthorID, &p.EntityID, &p.FolderID, &p.Changed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(initialData, &p.InitialData); err != nil {
		return nil, fmt.Errorf("error decoding proposal initial data: %w", err)
	}
	return p, nil
}

// ByID retrieves a proposal by ID.
func (r *ProposalRepository) ByID(ctx context.Context, id int64) (*models.Proposal, error) {
	return r.one(ctx, squirrel.Eq{"id": id})
}

// BySnapshot retrieves the proposal attached to a snapshot.
func (r *ProposalRepository) BySnapshot(ctx context.Context, snapshotID int64) (*models.Proposal, error) {
	return r.one(ctx, squirrel.Eq{"learning_unit_year_id": snapshotID})
}

func (r *ProposalRepository) one(ctx context.Context, pred squirrel.Eq) (*models.Proposal, error) {
	sql, args, err := r.sb.Select(proposalColumns...).
		From("proposal_learning_units").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build proposal query: %w", err)
	}

	p, err := scanProposal(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error().Err(err).Msg("Error scanning proposal row")
		return nil, fmt.Errorf("error getting proposal: %w", err)
	}
	return p, nil
}

// ByIDs retrieves the proposals whose ids are listed, in id order.
func (r *ProposalRepository) ByIDs(ctx context.Context, ids []int64) ([]*models.Proposal, error) {
	if len(ids) == 0 {
		return []*models.Proposal{}, nil
	}
	sql, args, err := r.sb.Select(proposalColumns...).
		From("proposal_learning_units").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build proposals query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying proposals")
		return nil, fmt.Errorf("error querying proposals: %w", err)
	}
	defer rows.Close()

	proposals := []*models.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning proposal row: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// Create inserts a new proposal with its initial-data blob.
func (r *ProposalRepository) Create(ctx context.Context, p *models.Proposal) (int64, error) {
	initialData, err := json.Marshal(p.InitialData)
	if err != nil {
		return 0, fmt.Errorf("error encoding proposal initial data: %w", err)
	}

	p.Changed = time.Now().UTC()
	sql, args, err := r.sb.Insert("proposal_learning_units").
		Columns(proposalColumns[1:]...).
		Values(p.UUID, p.LearningUnitYearID, p.Type, p.State, p.PreviousState,
			initialData, p.AuthorID, p.EntityID, p.FolderID, p.Changed).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create proposal query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if isDuplicateKeyError(err) {
			return 0, ErrProposalExists
		}
		logger.Error().Err(err).Int64("snapshotID", p.LearningUnitYearID).Msg("Error creating proposal")
		return 0, fmt.Errorf("error creating proposal: %w", err)
	}
	p.ID = id
	return id, nil
}

// Update persists the proposal's workflow fields. The initial-data blob is
// immutable after creation and is deliberately not written here.
func (r *ProposalRepository) Update(ctx context.Context, p *models.Proposal) error {
	now := time.Now().UTC()
	sql, args, err := r.sb.Update("proposal_learning_units").
		Set("type", p.Type).
		Set("state", p.State).
		Set("previous_state", p.PreviousState).
		Set("folder_id", p.FolderID).
		Set("changed", now).
		Where(squirrel.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update proposal query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("proposalID", p.ID).Msg("Error updating proposal")
		return fmt.Errorf("error updating proposal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	p.Changed = now
	return nil
}

// Delete removes a proposal.
func (r *ProposalRepository) Delete(ctx context.Context, id int64) error {
	sql, args, err := r.sb.Delete("proposal_learning_units").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete proposal query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("proposalID", id).Msg("Error deleting proposal")
		return fmt.Errorf("error deleting proposal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
