// Package inmem provides a map-backed implementation of repositories.Store.
// It enforces the same uniqueness rules and not-found behavior as the
// pgx-backed store and gives Atomic real rollback semantics by snapshotting
// the whole state, which makes it suitable for service tests and local
// experiments without a database.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
)

// Store is the in-memory repositories.Store.
type Store struct {
	mu sync.Mutex
	s  *state

	academicYears *academicYearRepo
	entities      *entityRepo
	learningUnits *learningUnitRepo
	snapshots     *snapshotRepo
	containers    *containerRepo
	components    *componentRepo
	pedagogy      *pedagogyRepo
	usage         *usageRepo
	proposals     *proposalRepo
}

type state struct {
	nextID int64

	academicYears     map[int64]*models.AcademicYear
	entities          map[int64]*models.Entity
	versions          map[int64]*models.EntityVersion
	learningUnits     map[int64]*models.LearningUnit
	snapshots         map[int64]*models.LearningUnitYear
	containers        map[int64]bool
	containerYears    map[int64]*models.LearningContainerYear
	containerEntities map[int64]map[models.EntityLink]int64
	components        map[int64]*models.LearningComponentYear
	classes           map[int64]*models.LearningClassYear
	texts             map[int64]*models.TranslatedText
	materials         map[int64]*models.TeachingMaterial
	externals         map[int64]*models.ExternalLearningUnitYear
	enrollments       map[int64][]int64
	attributions      map[int64][]int64
	groups            map[int64][]int64
	proposals         map[int64]*models.Proposal
}

func newState() *state {
	return &state{
		nextID:            0,
		academicYears:     map[int64]*models.AcademicYear{},
		entities:          map[int64]*models.Entity{},
		versions:          map[int64]*models.EntityVersion{},
		learningUnits:     map[int64]*models.LearningUnit{},
		snapshots:         map[int64]*models.LearningUnitYear{},
		containers:        map[int64]bool{},
		containerYears:    map[int64]*models.LearningContainerYear{},
		containerEntities: map[int64]map[models.EntityLink]int64{},
		components:        map[int64]*models.LearningComponentYear{},
		classes:           map[int64]*models.LearningClassYear{},
		texts:             map[int64]*models.TranslatedText{},
		materials:         map[int64]*models.TeachingMaterial{},
		externals:         map[int64]*models.ExternalLearningUnitYear{},
		enrollments:       map[int64][]int64{},
		attributions:      map[int64][]int64{},
		groups:            map[int64][]int64{},
		proposals:         map[int64]*models.Proposal{},
	}
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	st := &Store{s: newState()}
	st.academicYears = &academicYearRepo{st}
	st.entities = &entityRepo{st}
	st.learningUnits = &learningUnitRepo{st}
	st.snapshots = &snapshotRepo{st}
	st.containers = &containerRepo{st}
	st.components = &componentRepo{st}
	st.pedagogy = &pedagogyRepo{st}
	st.usage = &usageRepo{st}
	st.proposals = &proposalRepo{st}
	return st
}

func (st *Store) AcademicYears() repositories.AcademicYearStore { return st.academicYears }
func (st *Store) Entities() repositories.EntityStore            { return st.entities }
func (st *Store) LearningUnits() repositories.LearningUnitStore { return st.learningUnits }
func (st *Store) Snapshots() repositories.SnapshotStore         { return st.snapshots }
func (st *Store) Containers() repositories.ContainerStore       { return st.containers }
func (st *Store) Components() repositories.ComponentStore       { return st.components }
func (st *Store) Pedagogy() repositories.PedagogyStore          { return st.pedagogy }
func (st *Store) Usage() repositories.UsageStore                { return st.usage }
func (st *Store) Proposals() repositories.ProposalStore         { return st.proposals }

// Atomic snapshots the whole state, runs fn, and restores the snapshot when
// fn fails. Nested calls participate in the outermost snapshot.
func (st *Store) Atomic(_ context.Context, fn func(repositories.Store) error) error {
	st.mu.Lock()
	saved := st.s.clone()
	st.mu.Unlock()

	if err := fn(st); err != nil {
		st.mu.Lock()
		st.s = saved
		st.mu.Unlock()
		return err
	}
	return nil
}

func (st *Store) id() int64 {
	st.s.nextID++
	return st.s.nextID
}

func (st *Store) now() time.Time { return time.Now().UTC() }

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.academicYears {
		cp := *v
		c.academicYears[k] = &cp
	}
	for k, v := range s.entities {
		cp := *v
		c.entities[k] = &cp
	}
	for k, v := range s.versions {
		cp := *v
		c.versions[k] = &cp
	}
	for k, v := range s.learningUnits {
		cp := *v
		if v.EndYear != nil {
			e := *v.EndYear
			cp.EndYear = &e
		}
		c.learningUnits[k] = &cp
	}
	for k, v := range s.snapshots {
		cp := cloneSnapshot(v)
		c.snapshots[k] = cp
	}
	for k, v := range s.containers {
		c.containers[k] = v
	}
	for k, v := range s.containerYears {
		cp := *v
		c.containerYears[k] = &cp
	}
	for k, v := range s.containerEntities {
		m := map[models.EntityLink]int64{}
		for link, id := range v {
			m[link] = id
		}
		c.containerEntities[k] = m
	}
	for k, v := range s.components {
		cp := *v
		cp.Classes = nil
		c.components[k] = &cp
	}
	for k, v := range s.classes {
		cp := *v
		c.classes[k] = &cp
	}
	for k, v := range s.texts {
		cp := *v
		c.texts[k] = &cp
	}
	for k, v := range s.materials {
		cp := *v
		c.materials[k] = &cp
	}
	for k, v := range s.externals {
		cp := *v
		c.externals[k] = &cp
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = append([]int64{}, v...)
	}
	for k, v := range s.attributions {
		c.attributions[k] = append([]int64{}, v...)
	}
	for k, v := range s.groups {
		c.groups[k] = append([]int64{}, v...)
	}
	for k, v := range s.proposals {
		cp := *v
		cp.LearningUnitYear = nil
		c.proposals[k] = &cp
	}
	return c
}

func cloneSnapshot(s *models.LearningUnitYear) *models.LearningUnitYear {
	cp := *s
	cp.LearningUnit = nil
	cp.ContainerYear = nil
	cp.Components = nil
	if s.Quadrimester != nil {
		q := *s.Quadrimester
		cp.Quadrimester = &q
	}
	if s.Session != nil {
		v := *s.Session
		cp.Session = &v
	}
	if s.InternshipSubtype != nil {
		v := *s.InternshipSubtype
		cp.InternshipSubtype = &v
	}
	if s.AttributionProcedure != nil {
		v := *s.AttributionProcedure
		cp.AttributionProcedure = &v
	}
	return &cp
}
