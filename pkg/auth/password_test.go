package auth

import "testing"

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if hash == "s3cret-pass" {
		t.Fatalf("plaintext must never be stored")
	}
	if !CheckPassword("s3cret-pass", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong-pass", hash) {
		t.Fatalf("expected password check to fail")
	}
}

func TestHashPasswordProducesDistinctHashes(t *testing.T) {
	first, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	second, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if first == second {
		t.Fatalf("expected salted hashes to differ")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("longenough1"); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Fatalf("expected short password to fail")
	}
	tooLong := make([]byte, 80)
	for i := range tooLong {
		tooLong[i] = 'a'
	}
	if err := ValidatePassword(string(tooLong)); err == nil {
		t.Fatalf("expected over-length password to fail")
	}
}

func TestValidEmail(t *testing.T) {
	cases := []struct {
		email string
		want  bool
	}{
		{"doc@clinic.example", true},
		{"a@b.co", true},
		{"", false},
		{"no-at-sign", false},
		{"@clinic.example", false},
		{"doc@", false},
		{"doc@nodot", false},
		{"doc @clinic.example", false},
	}
	for _, tc := range cases {
		if got := ValidEmail(tc.email); got != tc.want {
			t.Fatalf("ValidEmail(%q) = %v, want %v", tc.email, got, tc.want)
		}
	}
}
