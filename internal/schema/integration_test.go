package schema

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
)

// SchemaIntegrationTestSuite exercises Create/CloneStructure/CloneData/Drop
// against a real Postgres instance, mirroring pkg/database/ex_test.go's
// DATABASE_URL-skip convention and tenant_isolation_test.go's suite shape.
type SchemaIntegrationTestSuite struct {
	suite.Suite
	pool     *pgxpool.Pool
	template string
	target   string
}

func TestSchemaIntegrationSuite(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	suite.Run(t, new(SchemaIntegrationTestSuite))
}

func (s *SchemaIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	s.Require().NoError(err)
	s.pool = pool
	s.template = "schema_test_template"
	s.target = "schema_test_target"
}

func (s *SchemaIntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	_ = Drop(ctx, s.pool, s.template)
	_ = Drop(ctx, s.pool, s.target)
	s.pool.Close()
}

func (s *SchemaIntegrationTestSuite) SetupTest() {
	ctx := context.Background()
	_ = Drop(ctx, s.pool, s.template)
	_ = Drop(ctx, s.pool, s.target)

	s.Require().NoError(Create(ctx, s.pool, s.template))
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE `+quote(s.template)+`.organizations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE `+quote(s.template)+`.users (
			id SERIAL PRIMARY KEY,
			organization_id INTEGER REFERENCES `+quote(s.template)+`.organizations(id),
			email TEXT NOT NULL
		)`)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx, `INSERT INTO `+quote(s.template)+`.organizations (name) VALUES ('acme')`)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx, `INSERT INTO `+quote(s.template)+`.users (organization_id, email) VALUES (1, 'a@acme.test')`)
	s.Require().NoError(err)
}

func (s *SchemaIntegrationTestSuite) TestCreateFailsOnCollision() {
	ctx := context.Background()
	err := Create(ctx, s.pool, s.template)
	s.Error(err, "expected creating an already-existing schema to fail rather than silently succeed")
}

func (s *SchemaIntegrationTestSuite) TestCloneStructureAndDataPreservesRowsAndRebasesSequences() {
	ctx := context.Background()

	s.Require().NoError(Create(ctx, s.pool, s.target))
	s.Require().NoError(CloneStructure(ctx, s.pool, s.template, s.target))
	s.Require().NoError(CloneData(ctx, s.pool, s.template, s.target))

	var userCount int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+quote(s.target)+`.users`).Scan(&userCount)
	s.Require().NoError(err)
	s.Equal(1, userCount, "expected the cloned schema to carry over the seeded row")

	var newID int
	err = s.pool.QueryRow(ctx, `INSERT INTO `+quote(s.target)+`.organizations (name) VALUES ('beta') RETURNING id`).Scan(&newID)
	s.Require().NoError(err)
	s.Greater(newID, 1, "expected the identity sequence to be rebased past the cloned row's id")
}

func (s *SchemaIntegrationTestSuite) TestExistsReflectsSchemaPresence() {
	ctx := context.Background()

	exists, err := Exists(ctx, s.pool, s.template)
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(Drop(ctx, s.pool, s.template))
	exists, err = Exists(ctx, s.pool, s.template)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *SchemaIntegrationTestSuite) TestSetSearchPathScopesUnqualifiedQueries() {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	s.Require().NoError(err)
	defer tx.Rollback(ctx)

	s.Require().NoError(SetSearchPath(ctx, tx, s.template))
	var name string
	err = tx.QueryRow(ctx, `SELECT name FROM organizations LIMIT 1`).Scan(&name)
	s.Require().NoError(err)
	s.Equal("acme", name)
}
