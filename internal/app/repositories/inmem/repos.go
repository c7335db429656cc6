package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

// ── academic years ──

type academicYearRepo struct{ st *Store }

func (r *academicYearRepo) ByYear(_ context.Context, year int) (*models.AcademicYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, y := range r.st.s.academicYears {
		if y.Year == year {
			cp := *y
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *academicYearRepo) Containing(_ context.Context, date time.Time) ([]*models.AcademicYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	matched := []*models.AcademicYear{}
	for _, y := range r.st.s.academicYears {
		if y.Contains(date) {
			cp := *y
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Year < matched[j].Year })
	return matched, nil
}

func (r *academicYearRepo) Range(_ context.Context, from, to int) ([]*models.AcademicYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	matched := []*models.AcademicYear{}
	for _, y := range r.st.s.academicYears {
		if y.Year >= from && y.Year <= to {
			cp := *y
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Year < matched[j].Year })
	return matched, nil
}

func (r *academicYearRepo) Create(_ context.Context, year *models.AcademicYear) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, y := range r.st.s.academicYears {
		if y.Year == year.Year {
			return 0, repositories.ErrAcademicYearExists
		}
	}
	year.ID = r.st.id()
	cp := *year
	r.st.s.academicYears[year.ID] = &cp
	return year.ID, nil
}

// ── entities ──

type entityRepo struct{ st *Store }

func (r *entityRepo) CreateEntity(_ context.Context, entity *models.Entity) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	entity.ID = r.st.id()
	cp := *entity
	r.st.s.entities[entity.ID] = &cp
	return entity.ID, nil
}

func (r *entityRepo) CreateVersion(_ context.Context, version *models.EntityVersion) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	version.ID = r.st.id()
	cp := *version
	r.st.s.versions[version.ID] = &cp
	return version.ID, nil
}

func (r *entityRepo) ActiveVersion(_ context.Context, entityID int64, date time.Time) (*models.EntityVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, v := range r.st.s.versions {
		if v.EntityID == entityID && v.IsActiveOn(date) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *entityRepo) Versions(_ context.Context, entityID int64) ([]*models.EntityVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	versions := []*models.EntityVersion{}
	for _, v := range r.st.s.versions {
		if v.EntityID == entityID {
			cp := *v
			versions = append(versions, &cp)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].StartDate.Before(versions[j].StartDate) })
	return versions, nil
}

func (r *entityRepo) ChildrenOn(_ context.Context, entityID int64, date time.Time) ([]*models.EntityVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	children := []*models.EntityVersion{}
	for _, v := range r.st.s.versions {
		if v.ParentEntityID != nil && *v.ParentEntityID == entityID && v.IsActiveOn(date) {
			cp := *v
			children = append(children, &cp)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Acronym < children[j].Acronym })
	return children, nil
}

// ── learning units ──

type learningUnitRepo struct{ st *Store }

func (r *learningUnitRepo) ByID(_ context.Context, id int64) (*models.LearningUnit, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	unit, ok := r.st.s.learningUnits[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *unit
	if unit.EndYear != nil {
		e := *unit.EndYear
		cp.EndYear = &e
	}
	return &cp, nil
}

func (r *learningUnitRepo) Create(_ context.Context, unit *models.LearningUnit) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	unit.ID = r.st.id()
	cp := *unit
	r.st.s.learningUnits[unit.ID] = &cp
	return unit.ID, nil
}

func (r *learningUnitRepo) SetEndYear(_ context.Context, id int64, endYear *int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	unit, ok := r.st.s.learningUnits[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if endYear == nil {
		unit.EndYear = nil
	} else {
		e := *endYear
		unit.EndYear = &e
	}
	return nil
}

func (r *learningUnitRepo) Delete(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.s.learningUnits[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.st.s.learningUnits, id)
	return nil
}

// ── snapshots ──

type snapshotRepo struct{ st *Store }

func (r *snapshotRepo) ByID(_ context.Context, id int64) (*models.LearningUnitYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.s.snapshots[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneSnapshot(s), nil
}

func (r *snapshotRepo) ByAcronymAndYear(_ context.Context, acronym string, year int) (*models.LearningUnitYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.s.snapshots {
		if s.Acronym == acronym && s.AcademicYear == year {
			return cloneSnapshot(s), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *snapshotRepo) ByUnitAndYear(_ context.Context, learningUnitID int64, year int) (*models.LearningUnitYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.s.snapshots {
		if s.LearningUnitID == learningUnitID && s.AcademicYear == year {
			return cloneSnapshot(s), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *snapshotRepo) ByUnit(_ context.Context, learningUnitID int64) ([]*models.LearningUnitYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	snapshots := []*models.LearningUnitYear{}
	for _, s := range r.st.s.snapshots {
		if s.LearningUnitID == learningUnitID {
			snapshots = append(snapshots, cloneSnapshot(s))
		}
	}
	sortSnapshots(snapshots)
	return snapshots, nil
}

func (r *snapshotRepo) ByContainerYear(_ context.Context, containerYearID int64) ([]*models.LearningUnitYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	snapshots := []*models.LearningUnitYear{}
	for _, s := range r.st.s.snapshots {
		if s.LearningContainerYearID == containerYearID {
			snapshots = append(snapshots, cloneSnapshot(s))
		}
	}
	sortSnapshots(snapshots)
	return snapshots, nil
}

func sortSnapshots(snapshots []*models.LearningUnitYear) {
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].AcademicYear != snapshots[j].AcademicYear {
			return snapshots[i].AcademicYear < snapshots[j].AcademicYear
		}
		return snapshots[i].Acronym < snapshots[j].Acronym
	})
}

func (r *snapshotRepo) Create(_ context.Context, s *models.LearningUnitYear) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.s.snapshots {
		if existing.LearningUnitID == s.LearningUnitID && existing.AcademicYear == s.AcademicYear {
			return 0, repositories.ErrSnapshotExists
		}
		if existing.Acronym == s.Acronym && existing.AcademicYear == s.AcademicYear {
			return 0, repositories.ErrAcronymTaken
		}
	}
	s.ID = r.st.id()
	s.Changed = r.st.now()
	r.st.s.snapshots[s.ID] = cloneSnapshot(s)
	return s.ID, nil
}

func (r *snapshotRepo) Update(_ context.Context, s *models.LearningUnitYear, expectedChanged time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.s.snapshots[s.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if !stored.Changed.Equal(expectedChanged) {
		return apperrors.ErrConcurrentUpdate
	}
	s.Changed = r.st.now()
	cp := cloneSnapshot(s)
	cp.LearningUnitID = stored.LearningUnitID
	cp.LearningContainerYearID = stored.LearningContainerYearID
	cp.AcademicYear = stored.AcademicYear
	cp.Subtype = stored.Subtype
	r.st.s.snapshots[s.ID] = cp
	return nil
}

func (r *snapshotRepo) Delete(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.s.snapshots[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.st.s.snapshots, id)
	// Emulate the schema-level cascades.
	for cid, c := range r.st.s.components {
		if c.LearningUnitYearID == id {
			for clsID, cls := range r.st.s.classes {
				if cls.LearningComponentYearID == cid {
					delete(r.st.s.classes, clsID)
				}
			}
			delete(r.st.s.components, cid)
		}
	}
	for tid, t := range r.st.s.texts {
		if t.Reference == id {
			delete(r.st.s.texts, tid)
		}
	}
	for mid, m := range r.st.s.materials {
		if m.LearningUnitYearID == id {
			delete(r.st.s.materials, mid)
		}
	}
	for eid, e := range r.st.s.externals {
		if e.LearningUnitYearID == id {
			delete(r.st.s.externals, eid)
		}
	}
	delete(r.st.s.enrollments, id)
	delete(r.st.s.attributions, id)
	delete(r.st.s.groups, id)
	for pid, p := range r.st.s.proposals {
		if p.LearningUnitYearID == id {
			delete(r.st.s.proposals, pid)
		}
	}
	return nil
}

// ── containers ──

type containerRepo struct{ st *Store }

func (r *containerRepo) CreateContainer(_ context.Context) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	id := r.st.id()
	r.st.s.containers[id] = true
	return id, nil
}

func (r *containerRepo) ByID(_ context.Context, id int64) (*models.LearningContainerYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cy, ok := r.st.s.containerYears[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *cy
	return &cp, nil
}

func (r *containerRepo) ByContainerAndYear(_ context.Context, containerID int64, year int) (*models.LearningContainerYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, cy := range r.st.s.containerYears {
		if cy.LearningContainerID == containerID && cy.AcademicYear == year {
			cp := *cy
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *containerRepo) Create(_ context.Context, cy *models.LearningContainerYear) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.s.containerYears {
		if existing.LearningContainerID == cy.LearningContainerID && existing.AcademicYear == cy.AcademicYear {
			return 0, repositories.ErrContainerYearExists
		}
	}
	cy.ID = r.st.id()
	cy.Changed = r.st.now()
	cp := *cy
	r.st.s.containerYears[cy.ID] = &cp
	return cy.ID, nil
}

func (r *containerRepo) Update(_ context.Context, cy *models.LearningContainerYear) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.s.containerYears[cy.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	cy.Changed = r.st.now()
	cp := *cy
	cp.LearningContainerID = stored.LearningContainerID
	cp.AcademicYear = stored.AcademicYear
	r.st.s.containerYears[cy.ID] = &cp
	return nil
}

func (r *containerRepo) Delete(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.s.containerYears[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.st.s.containerYears, id)
	delete(r.st.s.containerEntities, id)
	return nil
}

func (r *containerRepo) Entities(_ context.Context, containerYearID int64) (map[models.EntityLink]int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	entities := map[models.EntityLink]int64{}
	for link, id := range r.st.s.containerEntities[containerYearID] {
		entities[link] = id
	}
	return entities, nil
}

func (r *containerRepo) SetEntity(_ context.Context, containerYearID int64, link models.EntityLink, entityID int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.s.containerEntities[containerYearID] == nil {
		r.st.s.containerEntities[containerYearID] = map[models.EntityLink]int64{}
	}
	r.st.s.containerEntities[containerYearID][link] = entityID
	return nil
}

// ── components ──

type componentRepo struct{ st *Store }

func (r *componentRepo) BySnapshot(_ context.Context, snapshotID int64) ([]*models.LearningComponentYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	components := []*models.LearningComponentYear{}
	for _, c := range r.st.s.components {
		if c.LearningUnitYearID == snapshotID {
			cp := *c
			cp.Classes = nil
			components = append(components, &cp)
		}
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Type < components[j].Type })
	return components, nil
}

func (r *componentRepo) Create(_ context.Context, c *models.LearningComponentYear) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c.ID = r.st.id()
	cp := *c
	cp.Classes = nil
	r.st.s.components[c.ID] = &cp
	return c.ID, nil
}

func (r *componentRepo) Update(_ context.Context, c *models.LearningComponentYear) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.s.components[c.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	cp := *c
	cp.Classes = nil
	cp.LearningUnitYearID = stored.LearningUnitYearID
	cp.Type = stored.Type
	r.st.s.components[c.ID] = &cp
	return nil
}

func (r *componentRepo) Delete(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.s.components[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.st.s.components, id)
	for clsID, cls := range r.st.s.classes {
		if cls.LearningComponentYearID == id {
			delete(r.st.s.classes, clsID)
		}
	}
	return nil
}

func (r *componentRepo) Classes(_ context.Context, componentID int64) ([]*models.LearningClassYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	classes := []*models.LearningClassYear{}
	for _, cls := range r.st.s.classes {
		if cls.LearningComponentYearID == componentID {
			cp := *cls
			classes = append(classes, &cp)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].AcronymLetter < classes[j].AcronymLetter })
	return classes, nil
}

func (r *componentRepo) CreateClass(_ context.Context, cls *models.LearningClassYear) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cls.ID = r.st.id()
	cp := *cls
	r.st.s.classes[cls.ID] = &cp
	return cls.ID, nil
}

// ── pedagogy ──

type pedagogyRepo struct{ st *Store }

func (r *pedagogyRepo) Texts(_ context.Context, snapshotID int64) ([]*models.TranslatedText, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	texts := []*models.TranslatedText{}
	for _, t := range r.st.s.texts {
		if t.Reference == snapshotID {
			cp := *t
			texts = append(texts, &cp)
		}
	}
	sort.Slice(texts, func(i, j int) bool {
		if texts[i].TextLabel != texts[j].TextLabel {
			return texts[i].TextLabel < texts[j].TextLabel
		}
		return texts[i].Language < texts[j].Language
	})
	return texts, nil
}

func (r *pedagogyRepo) CreateText(_ context.Context, t *models.TranslatedText) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t.ID = r.st.id()
	cp := *t
	r.st.s.texts[t.ID] = &cp
	return t.ID, nil
}

func (r *pedagogyRepo) UpdateText(_ context.Context, t *models.TranslatedText) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.s.texts[t.ID]; !ok {
		return repositories.ErrNotFound
	}
	cp := *t
	r.st.s.texts[t.ID] = &cp
	return nil
}

func (r *pedagogyRepo) Materials(_ context.Context, snapshotID int64) ([]*models.TeachingMaterial, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	materials := []*models.TeachingMaterial{}
	for _, m := range r.st.s.materials {
		if m.LearningUnitYearID == snapshotID {
			cp := *m
			materials = append(materials, &cp)
		}
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].ID < materials[j].ID })
	return materials, nil
}

func (r *pedagogyRepo) CreateMaterial(_ context.Context, m *models.TeachingMaterial) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	m.ID = r.st.id()
	cp := *m
	r.st.s.materials[m.ID] = &cp
	return m.ID, nil
}

func (r *pedagogyRepo) External(_ context.Context, snapshotID int64) (*models.ExternalLearningUnitYear, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, e := range r.st.s.externals {
		if e.LearningUnitYearID == snapshotID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *pedagogyRepo) CreateExternal(_ context.Context, e *models.ExternalLearningUnitYear) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	e.ID = r.st.id()
	cp := *e
	r.st.s.externals[e.ID] = &cp
	return e.ID, nil
}

// ── usage ──

type usageRepo struct{ st *Store }

func (r *usageRepo) Usage(_ context.Context, snapshotID int64) (models.SnapshotUsage, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return models.SnapshotUsage{
		Enrollments:      len(r.st.s.enrollments[snapshotID]),
		Attributions:     len(r.st.s.attributions[snapshotID]),
		GroupMemberships: len(r.st.s.groups[snapshotID]),
	}, nil
}

func (r *usageRepo) AddEnrollment(_ context.Context, snapshotID, studentID int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.s.enrollments[snapshotID] = append(r.st.s.enrollments[snapshotID], studentID)
	return nil
}

func (r *usageRepo) AddAttribution(_ context.Context, snapshotID, tutorID int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.s.attributions[snapshotID] = append(r.st.s.attributions[snapshotID], tutorID)
	return nil
}

func (r *usageRepo) AddGroupMembership(_ context.Context, snapshotID, groupID int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.s.groups[snapshotID] = append(r.st.s.groups[snapshotID], groupID)
	return nil
}

// ── proposals ──

type proposalRepo struct{ st *Store }

func (r *proposalRepo) ByID(_ context.Context, id int64) (*models.Proposal, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.s.proposals[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *proposalRepo) ByIDs(_ context.Context, ids []int64) ([]*models.Proposal, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	proposals := []*models.Proposal{}
	for _, id := range ids {
		if p, ok := r.st.s.proposals[id]; ok {
			cp := *p
			proposals = append(proposals, &cp)
		}
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ID < proposals[j].ID })
	return proposals, nil
}

func (r *proposalRepo) BySnapshot(_ context.Context, snapshotID int64) (*models.Proposal, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range r.st.s.proposals {
		if p.LearningUnitYearID == snapshotID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *proposalRepo) Create(_ context.Context, p *models.Proposal) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.s.proposals {
		if existing.LearningUnitYearID == p.LearningUnitYearID {
			return 0, repositories.ErrProposalExists
		}
	}
	p.ID = r.st.id()
	p.Changed = r.st.now()
	cp := *p
	cp.LearningUnitYear = nil
	r.st.s.proposals[p.ID] = &cp
	return p.ID, nil
}

func (r *proposalRepo) Update(_ context.Context, p *models.Proposal) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.s.proposals[p.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	p.Changed = r.st.now()
	cp := *p
	cp.LearningUnitYear = nil
	// Initial data is immutable after creation.
	cp.InitialData = stored.InitialData
	r.st.s.proposals[p.ID] = &cp
	return nil
}

func (r *proposalRepo) Delete(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.s.proposals[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.st.s.proposals, id)
	return nil
}
