package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var operator = Identity{UserID: "user-123", TenantID: "tenant-1", Role: RoleOperator, Name: "Ana", Email: "ana@noc.local"}

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	now := time.Now()

	tok, exp, err := GenerateToken(operator, secret, now, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry mismatch: %v", exp)
	}

	got, err := ParseToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if got != operator {
		t.Fatalf("identity mismatch: got %+v want %+v", got, operator)
	}
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, _, err := GenerateToken(operator, secret, time.Now().Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = ParseToken(tok, secret)
	if err != common.ErrTokenExpired {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestParseTokenIgnoringExpiry_AcceptsExpired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, _, err := GenerateToken(operator, secret, time.Now().Add(-48*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := ParseTokenIgnoringExpiry(tok, secret)
	if err != nil {
		t.Fatalf("expected expired token to be accepted, got %v", err)
	}
	if got.UserID != operator.UserID || got.TenantID != operator.TenantID {
		t.Fatalf("identity mismatch: %+v", got)
	}
}

func TestParseTokenIgnoringExpiry_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, _, err := GenerateToken(operator, []byte("right-secret"), time.Now().Add(-48*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := ParseTokenIgnoringExpiry(tok, []byte("wrong-secret")); err != common.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, _, err := GenerateToken(operator, []byte("right-secret"), time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := ParseToken(tok, []byte("wrong-secret")); err == nil {
		t.Fatalf("expected error for invalid signature, got nil")
	}
}

func TestParseToken_MalformedString(t *testing.T) {
	t.Parallel()

	if _, err := ParseToken("not.a.jwt", []byte("k")); err != common.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := ParseTokenIgnoringExpiry("garbage", []byte("k")); err != common.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := token.SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseToken(s, []byte("k")); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}
}

func TestParseToken_MissingSubject(t *testing.T) {
	t.Parallel()

	tok, _, err := GenerateToken(Identity{TenantID: "t"}, []byte("k"), time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if _, err := ParseToken(tok, []byte("k")); err != common.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIdentity_IsAdmin(t *testing.T) {
	if operator.IsAdmin() {
		t.Fatal("operator must not be admin")
	}
	if !(Identity{Role: RoleAdmin}).IsAdmin() {
		t.Fatal("admin role must be admin")
	}
}
