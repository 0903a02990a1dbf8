package run

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"evalplatform/internal/isolation"
	"evalplatform/internal/meta"
	"evalplatform/internal/schema"
)

// RunIntegrationTestSuite exercises the full start-run/end-run pipeline
// (isolation -> differ -> assertion) against a real Postgres instance, the
// same DATABASE_URL-skip convention pkg/database/ex_test.go established.
type RunIntegrationTestSuite struct {
	suite.Suite
	pool         *pgxpool.Pool
	templateName string
	caller       meta.Principal
}

func TestRunIntegrationSuite(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	suite.Run(t, new(RunIntegrationTestSuite))
}

func (s *RunIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	s.Require().NoError(err)
	s.pool = pool
	s.templateName = "run_test_template"
	s.caller = meta.Principal{UserID: uuid.New()}

	s.Require().NoError(meta.RunMigrations(ctx, s.pool))
}

func (s *RunIntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	_ = schema.Drop(ctx, s.pool, s.templateName)
	s.pool.Close()
}

func (s *RunIntegrationTestSuite) SetupTest() {
	ctx := context.Background()
	_ = schema.Drop(ctx, s.pool, s.templateName)
	s.Require().NoError(schema.Create(ctx, s.pool, s.templateName))
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE `+quoteSchema(s.templateName)+`.orders (
			id SERIAL PRIMARY KEY,
			status TEXT NOT NULL
		)`)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx, `INSERT INTO `+quoteSchema(s.templateName)+`.orders (status) VALUES ('pending')`)
	s.Require().NoError(err)
}

func quoteSchema(name string) string { return `"` + name + `"` }

func (s *RunIntegrationTestSuite) TestFullRunPipelinePassesWhenExpectedChangeOccurs() {
	ctx := context.Background()

	tmplID := uuid.New()
	s.Require().NoError(meta.InsertTemplate(ctx, s.pool, meta.Template{
		ID:         tmplID,
		Service:    "orders-service",
		OwnerScope: meta.ScopePublic,
		Name:       "base",
		Version:    1,
		Kind:       meta.KindSchemaDump,
		Location:   s.templateName,
	}))

	handle, err := isolation.CreateEnvironment(ctx, s.pool, tmplID, 0, s.caller.UserID, nil, nil)
	s.Require().NoError(err)

	testID := uuid.New()
	s.Require().NoError(meta.InsertTest(ctx, s.pool, meta.Test{
		ID:          testID,
		Name:        "ship the pending order",
		Prompt:      "mark the pending order as shipped",
		Type:        meta.TestActionEval,
		TemplateRef: tmplID,
		Owner:       s.caller.UserID,
		ExpectedOutput: map[string]any{
			"version": "0.1",
			"assertions": []any{
				map[string]any{
					"diff_type": "changed",
					"entity":    "orders",
					"expected_changes": map[string]any{
						"status": map[string]any{"from": "pending", "to": "shipped"},
					},
				},
			},
		},
	}))

	startResult, err := StartRun(ctx, s.pool, handle.EnvironmentID, testID, nil, handle.Schema, s.caller)
	s.Require().NoError(err)
	s.Equal(meta.RunRunning, startResult.Status)

	_, err = s.pool.Exec(ctx, `UPDATE `+quoteSchema(handle.Schema)+`.orders SET status = 'shipped' WHERE id = 1`)
	s.Require().NoError(err)

	endResult, err := EndRun(ctx, s.pool, startResult.RunID, handle.Schema, s.caller)
	s.Require().NoError(err)
	s.True(endResult.Passed, "expected the run to pass once the expected change was made")
	s.Equal(meta.RunPassed, endResult.Status)
	s.Equal(1, endResult.Score.Total)
}

func (s *RunIntegrationTestSuite) TestEndRunRejectsAlreadyTerminalRun() {
	ctx := context.Background()

	tmplID := uuid.New()
	s.Require().NoError(meta.InsertTemplate(ctx, s.pool, meta.Template{
		ID:         tmplID,
		Service:    "orders-service",
		OwnerScope: meta.ScopePublic,
		Name:       "base2",
		Version:    1,
		Kind:       meta.KindSchemaDump,
		Location:   s.templateName,
	}))
	handle, err := isolation.CreateEnvironment(ctx, s.pool, tmplID, 0, s.caller.UserID, nil, nil)
	s.Require().NoError(err)

	testID := uuid.New()
	s.Require().NoError(meta.InsertTest(ctx, s.pool, meta.Test{
		ID:          testID,
		Name:        "no-op check",
		Prompt:      "do nothing",
		Type:        meta.TestActionEval,
		TemplateRef: tmplID,
		Owner:       s.caller.UserID,
		ExpectedOutput: map[string]any{
			"version":    "0.1",
			"assertions": []any{map[string]any{"diff_type": "added", "entity": "orders", "expected_count": 0.0}},
		},
	}))

	startResult, err := StartRun(ctx, s.pool, handle.EnvironmentID, testID, nil, handle.Schema, s.caller)
	s.Require().NoError(err)

	_, err = EndRun(ctx, s.pool, startResult.RunID, handle.Schema, s.caller)
	s.Require().NoError(err)

	_, err = EndRun(ctx, s.pool, startResult.RunID, handle.Schema, s.caller)
	s.Error(err, "expected ending an already-terminal run to fail")
}
