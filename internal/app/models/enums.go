package models

// Subtype distinguishes a full learning unit from one of its partims.
type Subtype string

const (
	SubtypeFull   Subtype = "FULL"
	SubtypePartim Subtype = "PARTIM"
)

// Periodicity defines how often a learning unit is taught.
type Periodicity string

const (
	PeriodicityAnnual       Periodicity = "ANNUAL"
	PeriodicityBiennialEven Periodicity = "BIENNIAL_EVEN"
	PeriodicityBiennialOdd  Periodicity = "BIENNIAL_ODD"
)

// Quadrimester is the half-year slot a learning unit is taught in.
type Quadrimester string

const (
	QuadrimesterQ1     Quadrimester = "Q1"
	QuadrimesterQ2     Quadrimester = "Q2"
	QuadrimesterQ1and2 Quadrimester = "Q1and2"
	QuadrimesterQ1or2  Quadrimester = "Q1or2"
)

// SessionDerogation is the exam-session pattern of a learning unit.
type SessionDerogation string

const (
	SessionX   SessionDerogation = "X"
	SessionXX  SessionDerogation = "XX"
	SessionXXX SessionDerogation = "XXX"
)

// InternshipSubtype qualifies internship containers.
type InternshipSubtype string

const (
	InternshipTeaching     InternshipSubtype = "TEACHING_INTERNSHIP"
	InternshipClinical     InternshipSubtype = "CLINICAL_INTERNSHIP"
	InternshipProfessional InternshipSubtype = "PROFESSIONAL_INTERNSHIP"
	InternshipResearch     InternshipSubtype = "RESEARCH_INTERNSHIP"
)

// ContainerType classifies a learning container year.
type ContainerType string

const (
	ContainerCourse          ContainerType = "COURSE"
	ContainerInternship      ContainerType = "INTERNSHIP"
	ContainerDissertation    ContainerType = "DISSERTATION"
	ContainerOtherCollective ContainerType = "OTHER_COLLECTIVE"
	ContainerOtherIndividual ContainerType = "OTHER_INDIVIDUAL"
	ContainerMasterThesis    ContainerType = "MASTER_THESIS"
	ContainerExternal        ContainerType = "EXTERNAL"
)

// ComponentType is the volume bucket kind attached to a snapshot.
type ComponentType string

const (
	ComponentLecturing          ComponentType = "LECTURING"
	ComponentPracticalExercises ComponentType = "PRACTICAL_EXERCISES"
)

// EntityType classifies organizational entities.
type EntityType string

const (
	EntitySector    EntityType = "SECTOR"
	EntityFaculty   EntityType = "FACULTY"
	EntitySchool    EntityType = "SCHOOL"
	EntityInstitute EntityType = "INSTITUTE"
	EntityPole      EntityType = "POLE"
	EntityDoctoral  EntityType = "DOCTORAL_COMMISSION"
	EntityPlatform  EntityType = "PLATFORM"
	EntityLogistics EntityType = "LOGISTICS_ENTITY"
	EntityUndefined EntityType = "UNDEFINED"
)

// EntityLink names the role an entity plays on a container year.
type EntityLink string

const (
	EntityRequirement            EntityLink = "REQUIREMENT_ENTITY"
	EntityAllocation             EntityLink = "ALLOCATION_ENTITY"
	EntityAdditionalRequirement1 EntityLink = "ADDITIONAL_REQUIREMENT_ENTITY_1"
	EntityAdditionalRequirement2 EntityLink = "ADDITIONAL_REQUIREMENT_ENTITY_2"
)

// ProposalType is the kind of change a proposal requests.
type ProposalType string

const (
	ProposalCreation                      ProposalType = "CREATION"
	ProposalModification                  ProposalType = "MODIFICATION"
	ProposalTransformation                ProposalType = "TRANSFORMATION"
	ProposalTransformationAndModification ProposalType = "TRANSFORMATION_AND_MODIFICATION"
	ProposalSuppression                   ProposalType = "SUPPRESSION"
)

// ProposalState is the workflow state of a proposal.
type ProposalState string

const (
	StateFaculty   ProposalState = "FACULTY"
	StateCentral   ProposalState = "CENTRAL"
	StateAccepted  ProposalState = "ACCEPTED"
	StateRefused   ProposalState = "REFUSED"
	StateSuspended ProposalState = "SUSPENDED"
)

// RoleType defines the manager role of a person acting on the core.
type RoleType string

const (
	RoleFacultyManager RoleType = "FACULTY_MANAGER"
	RoleCentralManager RoleType = "CENTRAL_MANAGER"
)
