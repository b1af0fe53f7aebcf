package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestSignAndVerify(t *testing.T) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	message := []byte(`{"046D:C52B":"Logitech USB Receiver"}`)
	sig := Sign(privKey, message)

	if len(sig) != ed25519.SignatureSize {
		t.Errorf("expected signature size %d, got %d", ed25519.SignatureSize, len(sig))
	}

	if err := Verify(pubKey, message, sig); err != nil {
		t.Errorf("signature verification failed: %v", err)
	}

	if err := Verify(pubKey, []byte("wrong message"), sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch, got %v", err)
	}

	if err := Verify(pubKey, message, make([]byte, ed25519.SignatureSize)); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch for zero signature, got %v", err)
	}

	if err := Verify(pubKey, message, []byte("short")); !errors.Is(err, ErrMalformedSignature) {
		t.Errorf("expected ErrMalformedSignature, got %v", err)
	}
}

func TestGetPublicKey(t *testing.T) {
	pub, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if !GetPublicKey(privKey).Equal(pub) {
		t.Error("public key mismatch")
	}
}

func TestDecodeSignature(t *testing.T) {
	_, privKey, _ := ed25519.GenerateKey(rand.Reader)
	sig := Sign(privKey, []byte("data"))

	raw, err := DecodeSignature(sig)
	if err != nil || string(raw) != string(sig) {
		t.Errorf("raw signature not accepted: %v", err)
	}

	decoded, err := DecodeSignature(EncodeSignature(sig))
	if err != nil || string(decoded) != string(sig) {
		t.Errorf("base64 signature not accepted: %v", err)
	}

	if _, err := DecodeSignature([]byte("not base64!!")); !errors.Is(err, ErrMalformedSignature) {
		t.Errorf("expected ErrMalformedSignature, got %v", err)
	}

	if _, err := DecodeSignature([]byte("c2hvcnQ=")); !errors.Is(err, ErrMalformedSignature) {
		t.Errorf("expected ErrMalformedSignature for short payload, got %v", err)
	}
}

func TestSignFileAndVerifyFile(t *testing.T) {
	tmpDir := t.TempDir()
	pubKey, privKey, _ := ed25519.GenerateKey(rand.Reader)

	path := filepath.Join(tmpDir, "whitelist.json")
	if err := os.WriteFile(path, []byte(`{"devices":["046D:C52B"]}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := VerifyFile(pubKey, path); !errors.Is(err, ErrSignatureMissing) {
		t.Errorf("expected ErrSignatureMissing before signing, got %v", err)
	}

	sigPath, err := SignFile(privKey, path)
	if err != nil {
		t.Fatalf("SignFile failed: %v", err)
	}
	if sigPath != path+".sig" {
		t.Errorf("unexpected signature path %s", sigPath)
	}

	if err := VerifyFile(pubKey, path); err != nil {
		t.Errorf("VerifyFile failed: %v", err)
	}

	// Tamper
	if err := os.WriteFile(path, []byte(`{"devices":["046D:C52B","1B4F:9206"]}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := VerifyFile(pubKey, path); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch after tampering, got %v", err)
	}

	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if err := VerifyBytes(otherPub, path, []byte(`{"devices":["046D:C52B"]}`)); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch with wrong key, got %v", err)
	}
}

func TestLoadRawSeed(t *testing.T) {
	tmpDir := t.TempDir()

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("failed to generate seed: %v", err)
	}

	keyPath := filepath.Join(tmpDir, "test.key")
	if err := os.WriteFile(keyPath, seed, 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	privKey, err := LoadPrivateKey(keyPath)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}

	if !privKey.Equal(ed25519.NewKeyFromSeed(seed)) {
		t.Error("loaded key doesn't match seed")
	}
}

func TestLoadRawPrivateKey(t *testing.T) {
	tmpDir := t.TempDir()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	keyPath := filepath.Join(tmpDir, "test.key")
	if err := os.WriteFile(keyPath, privKey, 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	loadedKey, err := LoadPrivateKey(keyPath)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}

	if !privKey.Equal(loadedKey) {
		t.Error("loaded key doesn't match original")
	}
}

func TestGenerateKeyFilesRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	privPath := filepath.Join(tmpDir, "whitelist_ed25519")

	pub, err := GenerateKeyFiles(privPath, "hidwatch test")
	if err != nil {
		t.Fatalf("GenerateKeyFiles failed: %v", err)
	}

	info, err := os.Stat(privPath)
	if err != nil {
		t.Fatalf("stat private key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected private key mode 0600, got %o", perm)
	}

	privKey, err := LoadPrivateKey(privPath)
	if err != nil {
		t.Fatalf("LoadPrivateKey (OpenSSH) failed: %v", err)
	}
	loadedPub, err := LoadPublicKey(privPath + ".pub")
	if err != nil {
		t.Fatalf("LoadPublicKey failed: %v", err)
	}
	if !pub.Equal(loadedPub) || !GetPublicKey(privKey).Equal(pub) {
		t.Error("generated key files don't match")
	}
}

func TestLoadOpenSSHPublicKey(t *testing.T) {
	tmpDir := t.TempDir()

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		t.Fatalf("failed to create SSH public key: %v", err)
	}

	pubKeyPath := filepath.Join(tmpDir, "test.pub")
	if err := os.WriteFile(pubKeyPath, ssh.MarshalAuthorizedKey(sshPubKey), 0644); err != nil {
		t.Fatalf("failed to write public key: %v", err)
	}

	loadedPubKey, err := LoadPublicKey(pubKeyPath)
	if err != nil {
		t.Fatalf("LoadPublicKey failed: %v", err)
	}
	if !pubKey.Equal(loadedPubKey) {
		t.Error("loaded public key doesn't match original")
	}

	message := []byte("test message")
	if err := Verify(loadedPubKey, message, Sign(privKey, message)); err != nil {
		t.Errorf("verification with loaded public key failed: %v", err)
	}
}

func TestLoadRawPublicKey(t *testing.T) {
	tmpDir := t.TempDir()

	pubKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pubKeyPath := filepath.Join(tmpDir, "test.pub")
	if err := os.WriteFile(pubKeyPath, pubKey, 0644); err != nil {
		t.Fatalf("failed to write public key: %v", err)
	}

	loadedPubKey, err := LoadPublicKey(pubKeyPath)
	if err != nil {
		t.Fatalf("LoadPublicKey failed: %v", err)
	}
	if !pubKey.Equal(loadedPubKey) {
		t.Error("loaded public key doesn't match original")
	}
}

func TestLoadInvalidKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "invalid.key")
	if err := os.WriteFile(keyPath, []byte("invalid key data"), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	if _, err := LoadPrivateKey(keyPath); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("expected ErrInvalidKeyFormat, got %v", err)
	}
}

func TestLoadNonexistentKey(t *testing.T) {
	if _, err := LoadPrivateKey("/nonexistent/key.pem"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func BenchmarkVerify(b *testing.B) {
	pubKey, privKey, _ := ed25519.GenerateKey(rand.Reader)
	message := []byte(`{"devices":["046D:C52B","045E:07A5","05AC:024F"]}`)
	sig := Sign(privKey, message)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Verify(pubKey, message, sig)
	}
}
