package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/db"
)

// ResolveAndTouch implements session.EnvironmentResolver: it looks up the
// environment's schema and status and bumps last_used_at in the same
// statement, whatever the status. A missing environment fails with
// not_found; one that is not ready fails with the environment_not_available
// state error named in the session contract.
func ResolveAndTouch(ctx context.Context, q db.Querier, envID uuid.UUID) (string, error) {
	var schema string
	var status EnvironmentStatus
	err := q.QueryRow(ctx, `
		UPDATE runtime_environments
		SET last_used_at = now()
		WHERE id = $1
		RETURNING schema, status
	`, envID).Scan(&schema, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apierrors.NotFound(fmt.Sprintf("environment %s not found", envID))
	}
	if err != nil {
		return "", apierrors.Internal(fmt.Sprintf("resolve environment %s: %v", envID, err))
	}
	if status != StatusReady {
		return "", apierrors.StateError(fmt.Sprintf("environment_not_available: environment %s is not ready (status=%s)", envID, status))
	}
	return schema, nil
}

// InsertRuntimeEnvironment persists the RTE row with status=ready, the
// last step of the Environment Handler's createEnvironment pipeline.
func InsertRuntimeEnvironment(ctx context.Context, q db.Querier, rte RuntimeEnvironment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO runtime_environments
			(id, template_id, schema, status, expires_at, last_used_at, created_by,
			 impersonate_user_id, impersonate_email, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
	`, rte.ID, rte.TemplateID, rte.Schema, rte.Status, rte.ExpiresAt, rte.LastUsedAt,
		rte.CreatedBy, rte.ImpersonateUserID, rte.ImpersonateEmail)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("insert runtime environment: %v", err))
	}
	return nil
}

func GetRuntimeEnvironment(ctx context.Context, q db.Querier, id uuid.UUID) (*RuntimeEnvironment, error) {
	var rte RuntimeEnvironment
	err := q.QueryRow(ctx, `
		SELECT id, template_id, schema, status, expires_at, last_used_at, created_by,
		       impersonate_user_id, impersonate_email, created_at, updated_at
		FROM runtime_environments WHERE id = $1
	`, id).Scan(&rte.ID, &rte.TemplateID, &rte.Schema, &rte.Status, &rte.ExpiresAt, &rte.LastUsedAt,
		&rte.CreatedBy, &rte.ImpersonateUserID, &rte.ImpersonateEmail, &rte.CreatedAt, &rte.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierrors.NotFound(fmt.Sprintf("environment %s not found", id))
	}
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("get runtime environment: %v", err))
	}
	return &rte, nil
}

func MarkEnvironmentStatus(ctx context.Context, q db.Querier, id uuid.UUID, status EnvironmentStatus) error {
	tag, err := q.Exec(ctx, `UPDATE runtime_environments SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("mark environment status: %v", err))
	}
	if tag.RowsAffected() == 0 {
		return apierrors.NotFound(fmt.Sprintf("environment %s not found", id))
	}
	return nil
}

// --- Templates ---

func InsertTemplate(ctx context.Context, q db.Querier, t Template) error {
	_, err := q.Exec(ctx, `
		INSERT INTO templates
			(id, service, owner_scope, owner_org_id, owner_user_id, name, version, kind, location, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, t.ID, t.Service, t.OwnerScope, t.OwnerOrgID, t.OwnerUserID, t.Name, t.Version, t.Kind, t.Location, t.Description)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("insert template: %v", err))
	}
	return nil
}

func GetTemplate(ctx context.Context, q db.Querier, id uuid.UUID) (*Template, error) {
	var t Template
	err := q.QueryRow(ctx, `
		SELECT id, service, owner_scope, owner_org_id, owner_user_id, name, version, kind, location, description, created_at
		FROM templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Service, &t.OwnerScope, &t.OwnerOrgID, &t.OwnerUserID, &t.Name, &t.Version, &t.Kind, &t.Location, &t.Description, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierrors.NotFound(fmt.Sprintf("template %s not found", id))
	}
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("get template: %v", err))
	}
	return &t, nil
}

// ResolveTemplateByName implements the Template Catalog's (service, name)
// lookup, scoped by visibility, failing conflict when more than one
// candidate matches and none pins an exact version.
func ResolveTemplateByName(ctx context.Context, q db.Querier, service, name string, version *int, caller Principal) (*Template, error) {
	rows, err := q.Query(ctx, `
		SELECT id, service, owner_scope, owner_org_id, owner_user_id, name, version, kind, location, description, created_at
		FROM templates
		WHERE service = $1 AND name = $2
		  AND (owner_scope = 'public'
		       OR (owner_scope = 'org' AND owner_org_id = $3)
		       OR (owner_scope = 'user' AND owner_user_id = $4))
		ORDER BY version DESC
	`, service, name, caller.OrgID, caller.UserID)
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("resolve template: %v", err))
	}
	defer rows.Close()

	var candidates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Service, &t.OwnerScope, &t.OwnerOrgID, &t.OwnerUserID, &t.Name, &t.Version, &t.Kind, &t.Location, &t.Description, &t.CreatedAt); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("scan template: %v", err))
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, apierrors.NotFound(fmt.Sprintf("no template %s/%s visible to caller", service, name))
	}
	if version != nil {
		for _, t := range candidates {
			if t.Version == *version {
				return &t, nil
			}
		}
		return nil, apierrors.NotFound(fmt.Sprintf("no template %s/%s at version %d", service, name, *version))
	}
	if len(candidates) > 1 {
		return nil, apierrors.Conflict(fmt.Sprintf("multiple templates match %s/%s; specify a version", service, name))
	}
	return &candidates[0], nil
}

// --- Tests, suites, memberships ---

func InsertTest(ctx context.Context, q db.Querier, t Test) error {
	payload, err := json.Marshal(t.ExpectedOutput)
	if err != nil {
		return apierrors.BadRequest(fmt.Sprintf("encode expected_output: %v", err))
	}
	_, err = q.Exec(ctx, `
		INSERT INTO tests (id, name, prompt, type, expected_output, template_ref, impersonate_user_id, owner, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, t.ID, t.Name, t.Prompt, t.Type, payload, t.TemplateRef, t.ImpersonateUserID, t.Owner)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("insert test: %v", err))
	}
	return nil
}

func GetTest(ctx context.Context, q db.Querier, id uuid.UUID) (*Test, error) {
	var t Test
	var payload []byte
	err := q.QueryRow(ctx, `
		SELECT id, name, prompt, type, expected_output, template_ref, impersonate_user_id, owner, created_at
		FROM tests WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Prompt, &t.Type, &payload, &t.TemplateRef, &t.ImpersonateUserID, &t.Owner, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierrors.NotFound(fmt.Sprintf("test %s not found", id))
	}
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("get test: %v", err))
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.ExpectedOutput); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("decode expected_output: %v", err))
		}
	}
	return &t, nil
}

func InsertTestSuite(ctx context.Context, q db.Querier, s TestSuite) error {
	_, err := q.Exec(ctx, `
		INSERT INTO test_suites (id, name, description, owner, visibility, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, s.ID, s.Name, s.Description, s.Owner, s.Visibility)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("insert test suite: %v", err))
	}
	return nil
}

func GetTestSuite(ctx context.Context, q db.Querier, id uuid.UUID) (*TestSuite, error) {
	var s TestSuite
	err := q.QueryRow(ctx, `
		SELECT id, name, description, owner, visibility, created_at FROM test_suites WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.Owner, &s.Visibility, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierrors.NotFound(fmt.Sprintf("test suite %s not found", id))
	}
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("get test suite: %v", err))
	}
	return &s, nil
}

func AddTestMembership(ctx context.Context, q db.Querier, m TestMembership) error {
	_, err := q.Exec(ctx, `
		INSERT INTO test_memberships (id, test_id, test_suite_id) VALUES ($1,$2,$3)
		ON CONFLICT (test_id, test_suite_id) DO NOTHING
	`, m.ID, m.TestID, m.TestSuiteID)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("add test membership: %v", err))
	}
	return nil
}

// --- Test runs ---

func InsertTestRun(ctx context.Context, q db.Querier, r TestRun) error {
	_, err := q.Exec(ctx, `
		INSERT INTO test_runs
			(id, test_id, test_suite_id, environment_id, status, before_snapshot_suffix,
			 after_snapshot_suffix, result, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
	`, r.ID, r.TestID, r.TestSuiteID, r.EnvironmentID, r.Status, r.BeforeSnapshotSuffix,
		r.AfterSnapshotSuffix, marshalResult(r.Result), r.CreatedBy)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("insert test run: %v", err))
	}
	return nil
}

func GetTestRun(ctx context.Context, q db.Querier, id uuid.UUID) (*TestRun, error) {
	var r TestRun
	var result []byte
	err := q.QueryRow(ctx, `
		SELECT id, test_id, test_suite_id, environment_id, status, before_snapshot_suffix,
		       after_snapshot_suffix, result, created_by, created_at, updated_at
		FROM test_runs WHERE id = $1
	`, id).Scan(&r.ID, &r.TestID, &r.TestSuiteID, &r.EnvironmentID, &r.Status, &r.BeforeSnapshotSuffix,
		&r.AfterSnapshotSuffix, &result, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierrors.NotFound(fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return nil, apierrors.Internal(fmt.Sprintf("get test run: %v", err))
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &r.Result); err != nil {
			return nil, apierrors.Internal(fmt.Sprintf("decode run result: %v", err))
		}
	}
	return &r, nil
}

// FinishTestRun persists the terminal state written by endRun. It is a
// plain UPDATE, not a conditional one: the orchestrator is responsible
// for rejecting endRun on an already-terminal run before calling this.
func FinishTestRun(ctx context.Context, q db.Querier, id uuid.UUID, status RunStatus, afterSuffix string, result map[string]any) error {
	_, err := q.Exec(ctx, `
		UPDATE test_runs
		SET status=$2, after_snapshot_suffix=$3, result=$4, updated_at=now()
		WHERE id=$1
	`, id, status, afterSuffix, marshalResult(result))
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("finish test run: %v", err))
	}
	return nil
}

func marshalResult(result map[string]any) []byte {
	if result == nil {
		return nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return b
}

// --- Diffs ---

func InsertDiff(ctx context.Context, q db.Querier, d Diff) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("encode diff payload: %v", err))
	}
	_, err = q.Exec(ctx, `
		INSERT INTO diffs (id, environment_id, before_suffix, after_suffix, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, d.ID, d.EnvironmentID, d.BeforeSuffix, d.AfterSuffix, payload)
	if err != nil {
		return apierrors.Internal(fmt.Sprintf("insert diff: %v", err))
	}
	return nil
}

// --- Organizations & access ---

// Principal is the caller identity threaded through every access check.
type Principal struct {
	UserID uuid.UUID
	OrgID  *uuid.UUID
}

// SoleOrganization returns the caller's one organization, failing with
// owner_scope_ambiguous semantics (conflict) unless membership count is
// exactly one.
func SoleOrganization(ctx context.Context, q db.Querier, userID uuid.UUID) (uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT organization_id FROM organization_memberships WHERE user_id = $1`, userID)
	if err != nil {
		return uuid.Nil, apierrors.Internal(fmt.Sprintf("list organization memberships: %v", err))
	}
	defer rows.Close()

	var orgs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, apierrors.Internal(fmt.Sprintf("scan organization membership: %v", err))
		}
		orgs = append(orgs, id)
	}
	if len(orgs) != 1 {
		return uuid.Nil, apierrors.Conflict("owner_scope_ambiguous: caller must belong to exactly one organization")
	}
	return orgs[0], nil
}

// SameOrgOrSelf implements the run-access rule: the caller may act on an
// entity it created, or that a fellow member of its organization created.
func SameOrgOrSelf(ctx context.Context, q db.Querier, caller Principal, createdBy uuid.UUID) (bool, error) {
	if caller.UserID == createdBy {
		return true, nil
	}
	if caller.OrgID == nil {
		return false, nil
	}
	var inOrg bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM organization_memberships
			WHERE organization_id = $1 AND user_id = $2
		)
	`, *caller.OrgID, createdBy).Scan(&inOrg)
	if err != nil {
		return false, apierrors.Internal(fmt.Sprintf("check organization membership: %v", err))
	}
	return inOrg, nil
}
