package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// ErrNotFound is the shared not-found sentinel of the data layer.
var ErrNotFound = apperrors.ErrNotFound

// DBTX is the querier shared by *pgxpool.Pool and pgx.Tx, so that every
// repository method runs either directly on the pool or inside the
// transaction opened by Store.Atomic.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the repositories the services consume. The pgx-backed
// Repositories implements it for production; the in-memory store under
// repositories/inmem implements it for tests.
type Store interface {
	AcademicYears() AcademicYearStore
	Entities() EntityStore
	LearningUnits() LearningUnitStore
	Snapshots() SnapshotStore
	Containers() ContainerStore
	Components() ComponentStore
	Pedagogy() PedagogyStore
	Usage() UsageStore
	Proposals() ProposalStore

	// Atomic runs fn inside one transaction. The Store handed to fn routes
	// every call through that transaction; any error rolls the whole set back.
	Atomic(ctx context.Context, fn func(Store) error) error
}

// AcademicYearStore reads and seeds the academic-year catalog.
type AcademicYearStore interface {
	ByYear(ctx context.Context, year int) (*models.AcademicYear, error)
	Containing(ctx context.Context, date time.Time) ([]*models.AcademicYear, error)
	Range(ctx context.Context, from, to int) ([]*models.AcademicYear, error)
	Create(ctx context.Context, year *models.AcademicYear) (int64, error)
}

// EntityStore manages organizational entities and their time-bounded versions.
type EntityStore interface {
	CreateEntity(ctx context.Context, entity *models.Entity) (int64, error)
	CreateVersion(ctx context.Context, version *models.EntityVersion) (int64, error)
	ActiveVersion(ctx context.Context, entityID int64, date time.Time) (*models.EntityVersion, error)
	Versions(ctx context.Context, entityID int64) ([]*models.EntityVersion, error)
	ChildrenOn(ctx context.Context, entityID int64, date time.Time) ([]*models.EntityVersion, error)
}

// LearningUnitStore manages learning-unit identity rows.
type LearningUnitStore interface {
	ByID(ctx context.Context, id int64) (*models.LearningUnit, error)
	Create(ctx context.Context, unit *models.LearningUnit) (int64, error)
	SetEndYear(ctx context.Context, id int64, endYear *int) error
	Delete(ctx context.Context, id int64) error
}

// SnapshotStore manages learning-unit-year snapshots.
type SnapshotStore interface {
	ByID(ctx context.Context, id int64) (*models.LearningUnitYear, error)
	ByAcronymAndYear(ctx context.Context, acronym string, year int) (*models.LearningUnitYear, error)
	ByUnit(ctx context.Context, learningUnitID int64) ([]*models.LearningUnitYear, error)
	ByUnitAndYear(ctx context.Context, learningUnitID int64, year int) (*models.LearningUnitYear, error)
	ByContainerYear(ctx context.Context, containerYearID int64) ([]*models.LearningUnitYear, error)
	Create(ctx context.Context, snapshot *models.LearningUnitYear) (int64, error)
	// Update persists the snapshot when its stored modification timestamp
	// still equals expectedChanged, and stamps a new one.
	Update(ctx context.Context, snapshot *models.LearningUnitYear, expectedChanged time.Time) error
	Delete(ctx context.Context, id int64) error
}

// ContainerStore manages container identities, container years and their
// entity links.
type ContainerStore interface {
	CreateContainer(ctx context.Context) (int64, error)
	ByID(ctx context.Context, id int64) (*models.LearningContainerYear, error)
	ByContainerAndYear(ctx context.Context, containerID int64, year int) (*models.LearningContainerYear, error)
	Create(ctx context.Context, cy *models.LearningContainerYear) (int64, error)
	Update(ctx context.Context, cy *models.LearningContainerYear) error
	Delete(ctx context.Context, id int64) error
	Entities(ctx context.Context, containerYearID int64) (map[models.EntityLink]int64, error)
	SetEntity(ctx context.Context, containerYearID int64, link models.EntityLink, entityID int64) error
}

// ComponentStore manages volume components and their class subdivisions.
type ComponentStore interface {
	BySnapshot(ctx context.Context, snapshotID int64) ([]*models.LearningComponentYear, error)
	Create(ctx context.Context, component *models.LearningComponentYear) (int64, error)
	Update(ctx context.Context, component *models.LearningComponentYear) error
	Delete(ctx context.Context, id int64) error
	Classes(ctx context.Context, componentID int64) ([]*models.LearningClassYear, error)
	CreateClass(ctx context.Context, class *models.LearningClassYear) (int64, error)
}

// PedagogyStore manages CMS texts, teaching materials and external records of
// a snapshot.
type PedagogyStore interface {
	Texts(ctx context.Context, snapshotID int64) ([]*models.TranslatedText, error)
	CreateText(ctx context.Context, text *models.TranslatedText) (int64, error)
	UpdateText(ctx context.Context, text *models.TranslatedText) error
	Materials(ctx context.Context, snapshotID int64) ([]*models.TeachingMaterial, error)
	CreateMaterial(ctx context.Context, material *models.TeachingMaterial) (int64, error)
	External(ctx context.Context, snapshotID int64) (*models.ExternalLearningUnitYear, error)
	CreateExternal(ctx context.Context, external *models.ExternalLearningUnitYear) (int64, error)
}

// UsageStore counts the references that block snapshot deletion.
type UsageStore interface {
	Usage(ctx context.Context, snapshotID int64) (models.SnapshotUsage, error)
	AddEnrollment(ctx context.Context, snapshotID, studentID int64) error
	AddAttribution(ctx context.Context, snapshotID, tutorID int64) error
	AddGroupMembership(ctx context.Context, snapshotID, groupID int64) error
}

// ProposalStore manages proposal workflow rows.
type ProposalStore interface {
	ByID(ctx context.Context, id int64) (*models.Proposal, error)
	ByIDs(ctx context.Context, ids []int64) ([]*models.Proposal, error)
	BySnapshot(ctx context.Context, snapshotID int64) (*models.Proposal, error)
	Create(ctx context.Context, proposal *models.Proposal) (int64, error)
	Update(ctx context.Context, proposal *models.Proposal) error
	Delete(ctx context.Context, id int64) error
}

// Repositories is the pgx-backed Store.
type Repositories struct {
	pool *pgxpool.Pool
	db   DBTX

	academicYears *AcademicYearRepository
	entities      *EntityRepository
	learningUnits *LearningUnitRepository
	snapshots     *SnapshotRepository
	containers    *ContainerRepository
	components    *ComponentRepository
	pedagogy      *PedagogyRepository
	usage         *UsageRepository
	proposals     *ProposalRepository
}

// NewRepositories initializes all repositories on the connection pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return newRepositories(pool, pool)
}

func newRepositories(pool *pgxpool.Pool, db DBTX) *Repositories {
	return &Repositories{
		pool:          pool,
		db:            db,
		academicYears: NewAcademicYearRepository(db),
		entities:      NewEntityRepository(db),
		learningUnits: NewLearningUnitRepository(db),
		snapshots:     NewSnapshotRepository(db),
		containers:    NewContainerRepository(db),
		components:    NewComponentRepository(db),
		pedagogy:      NewPedagogyRepository(db),
		usage:         NewUsageRepository(db),
		proposals:     NewProposalRepository(db),
	}
}

func (r *Repositories) AcademicYears() AcademicYearStore { return r.academicYears }
func (r *Repositories) Entities() EntityStore            { return r.entities }
func (r *Repositories) LearningUnits() LearningUnitStore { return r.learningUnits }
func (r *Repositories) Snapshots() SnapshotStore         { return r.snapshots }
func (r *Repositories) Containers() ContainerStore       { return r.containers }
func (r *Repositories) Components() ComponentStore       { return r.components }
func (r *Repositories) Pedagogy() PedagogyStore          { return r.pedagogy }
func (r *Repositories) Usage() UsageStore                { return r.usage }
func (r *Repositories) Proposals() ProposalStore         { return r.proposals }

// Atomic runs fn inside a single transaction. Nested calls reuse the ambient
// transaction instead of opening a new one.
func (r *Repositories) Atomic(ctx context.Context, fn func(Store) error) error {
	if _, alreadyTx := r.db.(pgx.Tx); alreadyTx {
		return fn(r)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(newRepositories(r.pool, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
			return fmt.Errorf("error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
