package meta

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"evalplatform/internal/schema"
)

// CatalogIntegrationTestSuite exercises the access-control helpers and the
// template name-resolution conflict rule against a real Postgres instance,
// the same DATABASE_URL-skip convention pkg/database/ex_test.go established.
type CatalogIntegrationTestSuite struct {
	suite.Suite
	pool *pgxpool.Pool
}

func TestCatalogIntegrationSuite(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	suite.Run(t, new(CatalogIntegrationTestSuite))
}

func (s *CatalogIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	s.Require().NoError(err)
	s.pool = pool
	s.Require().NoError(RunMigrations(ctx, pool))
}

func (s *CatalogIntegrationTestSuite) TearDownSuite() {
	s.pool.Close()
}

func (s *CatalogIntegrationTestSuite) insertUser(ctx context.Context) uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `INSERT INTO users (id, email) VALUES ($1, $2)`, id, id.String()+"@test.example")
	s.Require().NoError(err)
	return id
}

func (s *CatalogIntegrationTestSuite) insertOrg(ctx context.Context) uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `INSERT INTO organizations (id, name) VALUES ($1, $2)`, id, id.String())
	s.Require().NoError(err)
	return id
}

func (s *CatalogIntegrationTestSuite) addMembership(ctx context.Context, userID, orgID uuid.UUID) {
	_, err := s.pool.Exec(ctx, `INSERT INTO organization_memberships (id, user_id, organization_id) VALUES ($1, $2, $3)`,
		uuid.New(), userID, orgID)
	s.Require().NoError(err)
}

func (s *CatalogIntegrationTestSuite) TestSoleOrganizationRequiresExactlyOneMembership() {
	ctx := context.Background()
	user := s.insertUser(ctx)

	_, err := SoleOrganization(ctx, s.pool, user)
	s.Error(err, "expected a user with no organizations to fail owner_scope_ambiguous")

	org1 := s.insertOrg(ctx)
	s.addMembership(ctx, user, org1)
	got, err := SoleOrganization(ctx, s.pool, user)
	s.Require().NoError(err)
	s.Equal(org1, got)

	org2 := s.insertOrg(ctx)
	s.addMembership(ctx, user, org2)
	_, err = SoleOrganization(ctx, s.pool, user)
	s.Error(err, "expected a user in two organizations to fail owner_scope_ambiguous")
}

func (s *CatalogIntegrationTestSuite) TestSameOrgOrSelf() {
	ctx := context.Background()
	owner := s.insertUser(ctx)
	stranger := s.insertUser(ctx)
	colleague := s.insertUser(ctx)
	org := s.insertOrg(ctx)
	s.addMembership(ctx, owner, org)
	s.addMembership(ctx, colleague, org)

	ok, err := SameOrgOrSelf(ctx, s.pool, Principal{UserID: owner}, owner)
	s.Require().NoError(err)
	s.True(ok, "expected the creator to always have access")

	ok, err = SameOrgOrSelf(ctx, s.pool, Principal{UserID: colleague, OrgID: &org}, owner)
	s.Require().NoError(err)
	s.True(ok, "expected a fellow org member to have access")

	ok, err = SameOrgOrSelf(ctx, s.pool, Principal{UserID: stranger}, owner)
	s.Require().NoError(err)
	s.False(ok, "expected an unrelated caller with no org to be denied")
}

func (s *CatalogIntegrationTestSuite) TestResolveTemplateByNameConflictsOnAmbiguousMatch() {
	ctx := context.Background()
	owner := s.insertUser(ctx)

	s.Require().NoError(schema.Drop(ctx, s.pool, "catalog_test_v1"))
	s.Require().NoError(schema.Drop(ctx, s.pool, "catalog_test_v2"))
	s.Require().NoError(schema.Create(ctx, s.pool, "catalog_test_v1"))
	s.Require().NoError(schema.Create(ctx, s.pool, "catalog_test_v2"))

	s.Require().NoError(InsertTemplate(ctx, s.pool, Template{
		ID: uuid.New(), Service: "svc", OwnerScope: ScopePublic,
		Name: "base", Version: 1, Kind: KindSchemaDump, Location: "catalog_test_v1",
	}))
	s.Require().NoError(InsertTemplate(ctx, s.pool, Template{
		ID: uuid.New(), Service: "svc", OwnerScope: ScopePublic,
		Name: "base", Version: 2, Kind: KindSchemaDump, Location: "catalog_test_v2",
	}))

	_, err := ResolveTemplateByName(ctx, s.pool, "svc", "base", nil, Principal{UserID: owner})
	s.Error(err, "expected an unpinned lookup with two visible versions to conflict")

	version := 1
	tmpl, err := ResolveTemplateByName(ctx, s.pool, "svc", "base", &version, Principal{UserID: owner})
	s.Require().NoError(err)
	s.Equal(1, tmpl.Version)
}
