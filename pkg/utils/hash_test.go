package utils

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatalf("password stored in plain text")
	}
	if !CheckPassword("s3cret-pass", hash) {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword("wrong-pass", hash) {
		t.Fatalf("wrong password accepted")
	}
}
