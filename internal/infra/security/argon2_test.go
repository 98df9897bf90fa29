package security

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	password := "correct horse battery staple"

	encoded, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := VerifyPassword(password, encoded)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword returned false for correct password")
	}
}

func TestVerifyPasswordWrongPassword(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	ok, err := VerifyPassword("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordSurvivesReconfiguration(t *testing.T) {
	original := currentConfig()
	t.Cleanup(func() {
		if err := ConfigureArgon2(original); err != nil {
			t.Fatalf("restore config: %v", err)
		}
	})

	encoded, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	harder := original
	harder.Iterations = original.Iterations + 2
	if err := ConfigureArgon2(harder); err != nil {
		t.Fatalf("ConfigureArgon2 returned error: %v", err)
	}

	// The old hash still verifies because its parameters travel with it.
	ok, err := VerifyPassword("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if !ok {
		t.Fatal("hash written under previous parameters no longer verifies")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"plainhash",
		"argon2id$v=19$m=65536,t=3,p=4$onlyfourparts",
		"bcrypt$v=19$m=65536,t=3,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"argon2id$v=18$m=65536,t=3,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"argon2id$v=19$m=banana$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		if _, err := VerifyPassword("whatever", encoded); err == nil {
			t.Errorf("expected error for %q", encoded)
		}
	}
}

func TestVerifyPasswordEmptyInputs(t *testing.T) {
	ok, err := VerifyPassword("", "anything")
	if err != nil || ok {
		t.Fatalf("empty password: ok=%v err=%v", ok, err)
	}

	ok, err = VerifyPassword("password", "")
	if err != nil || ok {
		t.Fatalf("empty hash: ok=%v err=%v", ok, err)
	}
}

func TestConfigureArgon2RejectsWeakParameters(t *testing.T) {
	cases := []Argon2Config{
		{Memory: 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 0, Parallelism: 4, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 3, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 4, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 8},
	}

	for _, cfg := range cases {
		if err := ConfigureArgon2(cfg); !errors.Is(err, errInvalidConfig) {
			t.Errorf("config %+v: expected errInvalidConfig, got %v", cfg, err)
		}
	}
}
