package signing

import "testing"

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	sig := s.Sign("file123", 2, 1700000000)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate("file123", "2", "1700000000", sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate("wrong", "2", "1700000000", sig) {
		t.Fatalf("expected validation to fail for wrong file id")
	}
	if s.Validate("file123", "3", "1700000000", sig) {
		t.Fatalf("expected validation to fail for wrong version")
	}
	if s.Validate("file123", "2", "42", sig) {
		t.Fatalf("expected validation to fail for wrong expiry")
	}
	if s.Validate("file123", "x", "1700000000", sig) {
		t.Fatalf("expected validation to fail for malformed version")
	}
}
