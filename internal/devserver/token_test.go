package devserver

import (
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
)

func TestVerifyToken(t *testing.T) {
	tok, err := MintToken(testSecret, ana, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := VerifyToken(testSecret, tok)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Identity() != ana {
		t.Fatalf("identity = %+v", claims.Identity())
	}

	if _, err := VerifyToken([]byte("wrong"), tok); err == nil {
		t.Fatal("expected signature error")
	}

	expired, _ := MintToken(testSecret, ana, -time.Minute)
	if _, err := VerifyToken(testSecret, expired); err != nil {
		t.Fatalf("negative ttl is treated as no expiry, got %v", err)
	}

	anon, _ := MintToken(testSecret, chat.Identity{Name: "nobody"}, time.Hour)
	if _, err := VerifyToken(testSecret, anon); err == nil {
		t.Fatal("expected error for token without email")
	}
}

func TestFileTokenExpires(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tok, err := signFile(testSecret, "k", time.Minute, past)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifyFile(testSecret, tok); err == nil {
		t.Fatal("expected expired file token")
	}

	tok, _ = signFile(testSecret, "k", time.Minute, time.Now())
	key, err := verifyFile(testSecret, tok)
	if err != nil || key != "k" {
		t.Fatalf("verifyFile = %q, %v", key, err)
	}
}
