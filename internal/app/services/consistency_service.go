package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

// YearData is the fully loaded state of one snapshot for one year: the
// snapshot itself, its shared container, the container's entity links and the
// volume components. The validator compares two of these.
type YearData struct {
	Snapshot   *models.LearningUnitYear
	Container  *models.LearningContainerYear
	Entities   map[models.EntityLink]int64
	Components []*models.LearningComponentYear
}

// loadYearData fetches the complete state of a snapshot.
func loadYearData(ctx context.Context, store repositories.Store, snapshot *models.LearningUnitYear) (*YearData, error) {
	container, err := store.Containers().ByID(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return nil, fmt.Errorf("error loading container year %d: %w", snapshot.LearningContainerYearID, err)
	}
	entities, err := store.Containers().Entities(ctx, container.ID)
	if err != nil {
		return nil, fmt.Errorf("error loading container entities: %w", err)
	}
	components, err := store.Components().BySnapshot(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("error loading components: %w", err)
	}
	return &YearData{
		Snapshot:   snapshot,
		Container:  container,
		Entities:   entities,
		Components: components,
	}, nil
}

// ConsistencyService checks year-to-year equality of tracked fields and the
// per-snapshot volume, quadrimester, partim and periodicity invariants.
type ConsistencyService struct {
	store repositories.Store
}

// NewConsistencyService creates a new ConsistencyService.
func NewConsistencyService(store repositories.Store) *ConsistencyService {
	return &ConsistencyService{store: store}
}

// CompareYears diffs the tracked fields of two consecutive year-states.
// Empty string and null are considered equal for string fields. The returned
// diffs carry the next snapshot's year.
func (s *ConsistencyService) CompareYears(prev, next *YearData) []apperrors.FieldDiff {
	year := next.Snapshot.AcademicYear
	diffs := []apperrors.FieldDiff{}

	add := func(field, prevVal, nextVal string) {
		if prevVal != nextVal {
			diffs = append(diffs, apperrors.FieldDiff{
				Field: field, PrevValue: prevVal, NextValue: nextVal, Year: year,
			})
		}
	}

	// Snapshot fields. The acronym is compared without its year-independent
	// identity: renames are tracked.
	ps, ns := prev.Snapshot, next.Snapshot
	add("acronym", ps.Acronym, ns.Acronym)
	add("specific_title_fr", ps.SpecificTitleFr, ns.SpecificTitleFr)
	add("specific_title_en", ps.SpecificTitleEn, ns.SpecificTitleEn)
	add("subtype", string(ps.Subtype), string(ns.Subtype))
	add("credits", formatFloat(ps.Credits), formatFloat(ns.Credits))
	add("internship_subtype", strOrNil((*string)(ps.InternshipSubtype)), strOrNil((*string)(ns.InternshipSubtype)))
	add("status", strconv.FormatBool(ps.Status), strconv.FormatBool(ns.Status))
	add("session", strOrNil((*string)(ps.Session)), strOrNil((*string)(ns.Session)))
	add("quadrimester", strOrNil((*string)(ps.Quadrimester)), strOrNil((*string)(ns.Quadrimester)))
	add("campus", ps.Campus, ns.Campus)
	add("language", ps.Language, ns.Language)

	// Container fields.
	pc, nc := prev.Container, next.Container
	add("container_type", string(pc.ContainerType), string(nc.ContainerType))
	add("common_title_fr", pc.CommonTitleFr, nc.CommonTitleFr)
	add("common_title_en", pc.CommonTitleEn, nc.CommonTitleEn)
	add("container_acronym", pc.Acronym, nc.Acronym)
	add("team", strconv.FormatBool(pc.Team), strconv.FormatBool(nc.Team))

	// Entity links.
	for _, link := range []models.EntityLink{
		models.EntityRequirement, models.EntityAllocation,
		models.EntityAdditionalRequirement1, models.EntityAdditionalRequirement2,
	} {
		add(string(link), formatEntity(prev.Entities, link), formatEntity(next.Entities, link))
	}

	// Volumes, matched by component type.
	prevByType := componentsByType(prev.Components)
	for _, nextComp := range next.Components {
		prevComp, ok := prevByType[nextComp.Type]
		if !ok {
			diffs = append(diffs, apperrors.FieldDiff{
				Field: "component_" + string(nextComp.Type), PrevValue: "", NextValue: "present", Year: year,
			})
			continue
		}
		prefix := string(nextComp.Type) + "."
		add(prefix+"vol_q1", formatFloat(prevComp.VolQ1), formatFloat(nextComp.VolQ1))
		add(prefix+"vol_q2", formatFloat(prevComp.VolQ2), formatFloat(nextComp.VolQ2))
		add(prefix+"vol_total_annual", formatFloat(prevComp.VolTotalAnnual), formatFloat(nextComp.VolTotalAnnual))
		add(prefix+"planned_classes", strconv.Itoa(prevComp.PlannedClasses), strconv.Itoa(nextComp.PlannedClasses))
		add(prefix+"repartition_requirement", formatFloat(prevComp.RepartitionRequirement), formatFloat(nextComp.RepartitionRequirement))
		add(prefix+"repartition_additional_1", formatFloat(prevComp.RepartitionAdditional1), formatFloat(nextComp.RepartitionAdditional1))
		add(prefix+"repartition_additional_2", formatFloat(prevComp.RepartitionAdditional2), formatFloat(nextComp.RepartitionAdditional2))
	}

	return diffs
}

// CheckEntitiesActive verifies that every entity referenced by the year-state
// has an active version on the start date of the given academic year.
func (s *ConsistencyService) CheckEntitiesActive(ctx context.Context, data *YearData, year *models.AcademicYear) error {
	for link, entityID := range data.Entities {
		_, err := s.store.Entities().ActiveVersion(ctx, entityID, year.StartDate)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return apperrors.NewIntegrityFailure(
					"entity %d (%s) has no active version on %s", entityID, link, year.StartDate.Format("2006-01-02"))
			}
			return fmt.Errorf("error checking entity %d: %w", entityID, err)
		}
	}
	return nil
}

// SnapshotWarnings evaluates the per-snapshot invariants and returns the
// non-blocking warnings attached to the read model. full carries the full
// sibling's state when data is a partim; siblings carries every partim of the
// full when data is a full. Either may be nil.
func (s *ConsistencyService) SnapshotWarnings(data *YearData, full *YearData, siblings []*YearData) []string {
	warnings := []string{}

	for _, c := range data.Components {
		warnings = append(warnings, componentWarnings(c)...)
		if data.Snapshot.Quadrimester != nil {
			if w := quadrimesterWarning(*data.Snapshot.Quadrimester, c); w != "" {
				warnings = append(warnings, w)
			}
		}
	}

	if !data.Snapshot.HasIntegerCredits() {
		warnings = append(warnings, fmt.Sprintf(
			"credits of %s are not integer (%s)", data.Snapshot.Acronym, formatFloat(data.Snapshot.Credits)))
	}

	if data.Snapshot.IsPartim() && full != nil {
		warnings = append(warnings, partimVolumeWarnings(data, full)...)
		if w := periodicityWarning(data.Snapshot, full.Snapshot); w != "" {
			warnings = append(warnings, w)
		}
	}

	if !data.Snapshot.IsPartim() && len(siblings) > 0 {
		warnings = append(warnings, partimSumWarnings(data, siblings)...)
	}

	return warnings
}

// componentWarnings checks the volume laws of one component. The repartition
// check uses the effective total (Q1+Q2) so that a broken annual total does
// not also fail the repartition rule.
func componentWarnings(c *models.LearningComponentYear) []string {
	warnings := []string{}
	effectiveTotal := c.VolQ1 + c.VolQ2

	if c.VolTotalAnnual != 0 && c.VolTotalAnnual != effectiveTotal {
		warnings = append(warnings, fmt.Sprintf(
			"component %s: annual total must equal Q1+Q2", c.Type))
	}

	if c.PlannedClasses == 0 && effectiveTotal > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"component %s: planned classes cannot be zero when volumes are set", c.Type))
	}
	if c.PlannedClasses > 0 && effectiveTotal == 0 {
		warnings = append(warnings, fmt.Sprintf(
			"component %s: planned classes require a non-zero volume", c.Type))
	}

	if expected := float64(c.PlannedClasses) * effectiveTotal; expected != c.RepartitionSum() {
		warnings = append(warnings, fmt.Sprintf(
			"component %s: global volume (planned classes × total) must equal the sum of repartition volumes", c.Type))
	}

	return warnings
}

// quadrimesterWarning checks the quadrimester-volume coherence table.
func quadrimesterWarning(q models.Quadrimester, c *models.LearningComponentYear) string {
	hasQ1, hasQ2 := c.VolQ1 > 0, c.VolQ2 > 0
	if !hasQ1 && !hasQ2 {
		return ""
	}
	ok := true
	switch q {
	case models.QuadrimesterQ1:
		ok = hasQ1 && !hasQ2
	case models.QuadrimesterQ2:
		ok = !hasQ1 && hasQ2
	case models.QuadrimesterQ1and2:
		ok = hasQ1 && hasQ2
	case models.QuadrimesterQ1or2:
		ok = hasQ1 != hasQ2
	}
	if !ok {
		return fmt.Sprintf("component %s: volumes are inconsistent with quadrimester %s", c.Type, q)
	}
	return ""
}

// partimVolumeWarnings checks that every partim volume stays within the full
// sibling's matching component.
func partimVolumeWarnings(partim, full *YearData) []string {
	warnings := []string{}
	fullByType := componentsByType(full.Components)
	for _, pc := range partim.Components {
		fc, ok := fullByType[pc.Type]
		if !ok {
			continue
		}
		if pc.VolQ1 > fc.VolQ1 || pc.VolQ2 > fc.VolQ2 || pc.VolTotalAnnual > fc.VolTotalAnnual {
			warnings = append(warnings, fmt.Sprintf(
				"partim %s component %s exceeds the volumes of the full unit", partim.Snapshot.Acronym, pc.Type))
		}
	}
	return warnings
}

// partimSumWarnings checks that partim volumes summed per component type stay
// within the full's volume.
func partimSumWarnings(full *YearData, partims []*YearData) []string {
	type sums struct{ q1, q2, total float64 }
	perType := map[models.ComponentType]*sums{}
	for _, p := range partims {
		for _, c := range p.Components {
			s, ok := perType[c.Type]
			if !ok {
				s = &sums{}
				perType[c.Type] = s
			}
			s.q1 += c.VolQ1
			s.q2 += c.VolQ2
			s.total += c.VolTotalAnnual
		}
	}

	warnings := []string{}
	for _, fc := range full.Components {
		s, ok := perType[fc.Type]
		if !ok {
			continue
		}
		if s.q1 > fc.VolQ1 || s.q2 > fc.VolQ2 || s.total > fc.VolTotalAnnual {
			warnings = append(warnings, fmt.Sprintf(
				"component %s: the sum of partim volumes exceeds the full unit", fc.Type))
		}
	}
	return warnings
}

// periodicityWarning checks partim-vs-full periodicity compatibility. An
// annual full accepts any partim; a biennial full requires the same
// periodicity or an annual partim.
func periodicityWarning(partim, full *models.LearningUnitYear) string {
	if full.Periodicity == models.PeriodicityAnnual {
		return ""
	}
	if partim.Periodicity == full.Periodicity || partim.Periodicity == models.PeriodicityAnnual {
		return ""
	}
	return fmt.Sprintf("partim %s periodicity %s is incompatible with the full unit's %s",
		partim.Acronym, partim.Periodicity, full.Periodicity)
}

func componentsByType(components []*models.LearningComponentYear) map[models.ComponentType]*models.LearningComponentYear {
	byType := map[models.ComponentType]*models.LearningComponentYear{}
	for _, c := range components {
		byType[c.Type] = c
	}
	return byType
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func strOrNil(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatEntity(entities map[models.EntityLink]int64, link models.EntityLink) string {
	id, ok := entities[link]
	if !ok {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
