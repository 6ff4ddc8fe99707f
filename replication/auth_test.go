package replication

import "testing"

func TestSignAndVerifyReplicaToken(t *testing.T) {
	secret := []byte("s3cret")

	tok, err := SignReplicaToken(secret, "6380")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyReplicaToken(secret, tok, "6380"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyReplicaTokenRejectsWrongPort(t *testing.T) {
	secret := []byte("s3cret")

	tok, err := SignReplicaToken(secret, "6380")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyReplicaToken(secret, tok, "6381"); err == nil {
		t.Fatal("expected mismatch error, got nil")
	}
}

func TestVerifyReplicaTokenRejectsWrongSecret(t *testing.T) {
	tok, err := SignReplicaToken([]byte("s3cret"), "6380")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyReplicaToken([]byte("other"), tok, "6380"); err == nil {
		t.Fatal("expected signature error, got nil")
	}
}
