// Package meta implements the catalog storage layer: templates, runtime
// environments, tests, suites, runs, and diffs, all living under the
// public schema of the shared pool. Grounded on the table shapes in the
// system this platform's data model was distilled from (db/schema.py),
// re-expressed as explicit Go structs and hand-written SQL rather than an
// ORM — this repository has no ORM anywhere in its stack to ground one on.
package meta

import (
	"time"

	"github.com/google/uuid"
)

type OwnerScope string

const (
	ScopePublic OwnerScope = "public"
	ScopeOrg    OwnerScope = "org"
	ScopeUser   OwnerScope = "user"
)

type TemplateKind string

const (
	KindSchemaDump TemplateKind = "schemaDump"
	KindArtifact   TemplateKind = "artifact"
	KindJSONDoc    TemplateKind = "jsonDoc"
)

type EnvironmentStatus string

const (
	StatusInitializing EnvironmentStatus = "initializing"
	StatusReady        EnvironmentStatus = "ready"
	StatusExpired      EnvironmentStatus = "expired"
	StatusDeleted      EnvironmentStatus = "deleted"
)

type TestType string

const (
	TestActionEval    TestType = "actionEval"
	TestRetrievalEval TestType = "retrievalEval"
	TestCompositeEval TestType = "compositeEval"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunError   RunStatus = "error"
)

type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

type OrganizationMembership struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
}

// Template is the immutable blueprint row (TemplateEnvironment in the
// data model).
type Template struct {
	ID             uuid.UUID
	Service        string
	OwnerScope     OwnerScope
	OwnerOrgID     *uuid.UUID
	OwnerUserID    *uuid.UUID
	Name           string
	Version        int
	Kind           TemplateKind
	Location       string
	Description    string
	CreatedAt      time.Time
}

// RuntimeEnvironment is a live tenant row.
type RuntimeEnvironment struct {
	ID                 uuid.UUID
	TemplateID         *uuid.UUID
	Schema             string
	Status             EnvironmentStatus
	ExpiresAt          *time.Time
	LastUsedAt         *time.Time
	CreatedBy          uuid.UUID
	ImpersonateUserID  *uuid.UUID
	ImpersonateEmail   *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Diff is a durable record of one computed comparison.
type Diff struct {
	ID            uuid.UUID
	EnvironmentID uuid.UUID
	BeforeSuffix  string
	AfterSuffix   string
	Payload       map[string]any
	CreatedAt     time.Time
}

// Test is one named, reusable agent task.
type Test struct {
	ID                uuid.UUID
	Name              string
	Prompt            string
	Type              TestType
	ExpectedOutput    map[string]any
	TemplateRef       uuid.UUID
	ImpersonateUserID *uuid.UUID
	Owner             uuid.UUID
	CreatedAt         time.Time
}

type TestSuite struct {
	ID          uuid.UUID
	Name        string
	Description string
	Owner       uuid.UUID
	Visibility  Visibility
	CreatedAt   time.Time
}

type TestMembership struct {
	ID          uuid.UUID
	TestID      uuid.UUID
	TestSuiteID uuid.UUID
}

type TestRun struct {
	ID                   uuid.UUID
	TestID               uuid.UUID
	TestSuiteID          *uuid.UUID
	EnvironmentID        uuid.UUID
	Status               RunStatus
	BeforeSnapshotSuffix *string
	AfterSnapshotSuffix  *string
	Result               map[string]any
	CreatedBy            uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
