package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func contextWithHeaders(headers map[string]string) *gin.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func TestPrincipalFromHeadersFallsBackWhenUserIDAbsent(t *testing.T) {
	c := contextWithHeaders(nil)
	principal, err := principalFromHeaders(c)
	if err != nil {
		t.Fatalf("principalFromHeaders: %v", err)
	}
	if principal.UserID != devFallbackUserID {
		t.Errorf("expected fallback user id, got %s", principal.UserID)
	}
	if principal.OrgID != nil {
		t.Error("expected no org id when none supplied")
	}
}

func TestPrincipalFromHeadersParsesUserAndOrg(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	c := contextWithHeaders(map[string]string{
		headerUserID: userID.String(),
		headerOrgID:  orgID.String(),
	})

	principal, err := principalFromHeaders(c)
	if err != nil {
		t.Fatalf("principalFromHeaders: %v", err)
	}
	if principal.UserID != userID {
		t.Errorf("user id = %s, want %s", principal.UserID, userID)
	}
	if principal.OrgID == nil || *principal.OrgID != orgID {
		t.Errorf("org id = %v, want %s", principal.OrgID, orgID)
	}
}

func TestPrincipalFromHeadersRejectsInvalidUserID(t *testing.T) {
	c := contextWithHeaders(map[string]string{headerUserID: "not-a-uuid"})
	if _, err := principalFromHeaders(c); err == nil {
		t.Error("expected an error for a non-UUID X-User-ID header")
	}
}

func TestPrincipalFromClaimsRequiresUserID(t *testing.T) {
	if _, err := principalFromClaims(jwt.MapClaims{}); err == nil {
		t.Error("expected an error when user_id claim is missing")
	}
}

func TestPrincipalFromClaimsParsesUserAndOrg(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	claims := jwt.MapClaims{"user_id": userID.String(), "org_id": orgID.String()}

	principal, err := principalFromClaims(claims)
	if err != nil {
		t.Fatalf("principalFromClaims: %v", err)
	}
	if principal.UserID != userID {
		t.Errorf("user id = %s, want %s", principal.UserID, userID)
	}
	if principal.OrgID == nil || *principal.OrgID != orgID {
		t.Errorf("org id = %v, want %s", principal.OrgID, orgID)
	}
}

func TestExtractBearerToken(t *testing.T) {
	c := contextWithHeaders(map[string]string{"Authorization": "Bearer abc.def.ghi"})
	if got := extractBearerToken(c); got != "abc.def.ghi" {
		t.Errorf("extractBearerToken = %q, want abc.def.ghi", got)
	}

	c = contextWithHeaders(map[string]string{"Authorization": "Basic xyz"})
	if got := extractBearerToken(c); got != "" {
		t.Errorf("extractBearerToken on a non-Bearer header = %q, want empty", got)
	}
}

func TestValidateJWTRoundTrip(t *testing.T) {
	secret := "test-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": uuid.New().String()})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	claims, err := validateJWT(signed, secret)
	if err != nil {
		t.Fatalf("validateJWT: %v", err)
	}
	if claims["user_id"] == nil {
		t.Error("expected user_id claim to survive validation")
	}
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": uuid.New().String()})
	signed, err := token.SignedString([]byte("correct-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := validateJWT(signed, "wrong-secret"); err == nil {
		t.Error("expected validation to fail with the wrong secret")
	}
}

func TestValidateJWTRejectsNonHMACMethod(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": uuid.New().String()})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign unsigned token: %v", err)
	}
	if _, err := validateJWT(signed, "any-secret"); err == nil {
		t.Error("expected validation to reject a non-HMAC signing method")
	}
}
