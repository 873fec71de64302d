package auth

import (
	"testing"
	"time"
)

func TestIssueParse_RoundTrip(t *testing.T) {
	pair, err := Issue("teacher-42", RoleTeacher, "classroom-api", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "test-key", "classroom-api")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "teacher-42" {
		t.Errorf("subject = %q, want teacher-42", claims.Subject)
	}
	if claims.Role != RoleTeacher {
		t.Errorf("role = %q, want %q", claims.Role, RoleTeacher)
	}
}

func TestParse_Rejects(t *testing.T) {
	pair, err := Issue("stu-1", RoleStudent, "classroom-api", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := Parse(pair.AccessToken, "wrong-key", "classroom-api"); err == nil {
		t.Error("expected failure with wrong signing key")
	}
	if _, err := Parse(pair.AccessToken, "test-key", "other-issuer"); err == nil {
		t.Error("expected failure with wrong issuer")
	}
	if _, err := Parse("not-a-token", "test-key", "classroom-api"); err == nil {
		t.Error("expected failure on garbage token")
	}
}

func TestParse_Expired(t *testing.T) {
	pair, err := Issue("stu-1", RoleStudent, "classroom-api", "test-key", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "classroom-api"); err == nil {
		t.Error("expected failure on expired token")
	}
}
