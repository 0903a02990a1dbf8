// Package run implements the Run Orchestrator: the pending -> running ->
// {passed, failed, error} state machine that brackets one test execution
// with a before/after snapshot pair and folds any mid-run failure into a
// terminal error status rather than propagating it, the same
// composed-result-type shape this codebase's handlers use for request
// processing (see pkg/errors and the deal-service handlers it backs).
package run

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"evalplatform/internal/apierrors"
	"evalplatform/internal/assertion"
	"evalplatform/internal/db"
	"evalplatform/internal/differ"
	"evalplatform/internal/diffmodel"
	"evalplatform/internal/dsl"
	"evalplatform/internal/meta"
)

// StartResult is startRun's return value.
type StartResult struct {
	RunID          uuid.UUID
	Status         meta.RunStatus
	BeforeSnapshot string
}

// EndResult is endRun's return value.
type EndResult struct {
	RunID  uuid.UUID
	Status meta.RunStatus
	Passed bool
	Score  assertion.Score
}

// checkSuiteAccess enforces that a private suite can only be used by its
// owner or a fellow member of the owner's organization.
func checkSuiteAccess(ctx context.Context, q db.Querier, testSuiteID *uuid.UUID, caller meta.Principal) error {
	if testSuiteID == nil {
		return nil
	}
	suite, err := meta.GetTestSuite(ctx, q, *testSuiteID)
	if err != nil {
		return err
	}
	if suite.Visibility == meta.VisibilityPublic {
		return nil
	}
	ok, err := meta.SameOrgOrSelf(ctx, q, caller, suite.Owner)
	if err != nil {
		return err
	}
	if !ok {
		return apierrors.Unauthorized(fmt.Sprintf("test suite %s is private", *testSuiteID))
	}
	return nil
}

// StartRun snapshots the tenant schema as "before" and opens a running
// TestRun row. q must be a transaction scoped to envId's tenant schema
// (see internal/session.Router.WithTenant) so the snapshot and the
// catalog insert observe the same search_path.
func StartRun(ctx context.Context, q db.Querier, envID, testID uuid.UUID, testSuiteID *uuid.UUID, schemaName string, caller meta.Principal) (*StartResult, error) {
	test, err := meta.GetTest(ctx, q, testID)
	if err != nil {
		return nil, err
	}
	if err := checkSuiteAccess(ctx, q, testSuiteID, caller); err != nil {
		return nil, err
	}

	d, err := differ.New(ctx, q, schemaName)
	if err != nil {
		return nil, err
	}
	beforeSuffix := "before_" + uuid.New().String()[:8]
	if err := d.CreateSnapshot(ctx, q, beforeSuffix); err != nil {
		return nil, err
	}

	runID := uuid.New()
	tr := meta.TestRun{
		ID:                   runID,
		TestID:               test.ID,
		TestSuiteID:          testSuiteID,
		EnvironmentID:        envID,
		Status:               meta.RunRunning,
		BeforeSnapshotSuffix: &beforeSuffix,
		CreatedBy:            caller.UserID,
	}
	if err := meta.InsertTestRun(ctx, q, tr); err != nil {
		return nil, err
	}

	return &StartResult{RunID: runID, Status: meta.RunRunning, BeforeSnapshot: beforeSuffix}, nil
}

// EndRun snapshots the tenant schema as "after", diffs it against the
// run's before snapshot, evaluates the test's expected output, and
// persists a terminal status. A non-nil error is returned only for a run
// that is not found, a caller without access, a run already terminal
// (run_already_ended) or without a before snapshot, a failed catalog
// lookup, or a failure to persist the result; every other failure
// (snapshot, diff, compile, evaluate) is captured into a status=error
// result instead.
func EndRun(ctx context.Context, q db.Querier, runID uuid.UUID, schemaName string, caller meta.Principal) (*EndResult, error) {
	tr, err := meta.GetTestRun(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	if isTerminal(tr.Status) {
		return nil, apierrors.StateError(fmt.Sprintf("run_already_ended: %s", runID))
	}
	ok, err := meta.SameOrgOrSelf(ctx, q, caller, tr.CreatedBy)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierrors.Unauthorized(fmt.Sprintf("run %s does not belong to caller", runID))
	}
	if tr.BeforeSnapshotSuffix == nil {
		return nil, apierrors.StateError(fmt.Sprintf("run %s has no before snapshot", runID))
	}

	status, afterSuffix, evaluation, diffPayload := evaluateRun(ctx, q, tr, schemaName)

	result := evaluation
	if result == nil {
		result = map[string]any{}
	}
	result["diff"] = diffPayload
	if err := meta.FinishTestRun(ctx, q, runID, status, afterSuffix, result); err != nil {
		return nil, err
	}

	score, _ := result["score"].(assertion.Score)
	passed := status == meta.RunPassed
	return &EndResult{RunID: runID, Status: status, Passed: passed, Score: score}, nil
}

// evaluateRun runs the snapshot/diff/evaluate sub-pipeline and folds any
// failure into an error-status result instead of returning it, per the
// orchestrator's composed-result-type contract.
func evaluateRun(ctx context.Context, q db.Querier, tr *meta.TestRun, schemaName string) (meta.RunStatus, string, map[string]any, any) {
	afterSuffix := "after_" + uuid.New().String()[:8]

	fail := func(reason string) (meta.RunStatus, string, map[string]any, any) {
		return meta.RunError, afterSuffix, map[string]any{
			"passed":   false,
			"failures": []string{reason},
			"score":    assertion.Score{Passed: 0, Total: 0, Percent: 0.0},
		}, diffmodel.Diff{}.Payload()
	}

	d, err := differ.New(ctx, q, schemaName)
	if err != nil {
		return fail(fmt.Sprintf("internal: %v", err))
	}
	if err := d.CreateSnapshot(ctx, q, afterSuffix); err != nil {
		return fail(fmt.Sprintf("internal: %v", err))
	}

	diff, err := d.GetDiff(ctx, q, *tr.BeforeSnapshotSuffix, afterSuffix, nil)
	if err != nil {
		return fail(fmt.Sprintf("internal: %v", err))
	}
	if err := differ.StoreDiff(ctx, q, tr.EnvironmentID, diff, *tr.BeforeSnapshotSuffix, afterSuffix); err != nil {
		return fail(fmt.Sprintf("internal: %v", err))
	}

	test, err := meta.GetTest(ctx, q, tr.TestID)
	if err != nil {
		return fail(fmt.Sprintf("internal: %v", err))
	}
	spec, err := dsl.Compile(test.ExpectedOutput)
	if err != nil {
		return fail(fmt.Sprintf("compile: %v", err))
	}

	eval := assertion.Evaluate(spec, diff)
	status := meta.RunFailed
	if eval.Passed {
		status = meta.RunPassed
	}
	return status, afterSuffix, map[string]any{
		"passed":   eval.Passed,
		"failures": eval.Failures,
		"score":    eval.Score,
	}, diff.Payload()
}

func isTerminal(status meta.RunStatus) bool {
	switch status {
	case meta.RunPassed, meta.RunFailed, meta.RunError:
		return true
	default:
		return false
	}
}
