package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptedFileStorage(t *testing.T) {
	tmpDir := t.TempDir()

	storage, err := NewEncryptedFileStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create encrypted storage: %v", err)
	}

	testData := []byte(`{"profile":"test","accessToken":"test-token"}`)

	// Test Save
	err = storage.Save("test-profile", testData)
	if err != nil {
		t.Errorf("Save failed: %v", err)
	}

	// Verify file exists and is encrypted
	credFile := filepath.Join(tmpDir, "credentials", "test-profile.enc")
	encryptedData, err := os.ReadFile(credFile)
	if err != nil {
		t.Errorf("Failed to read encrypted file: %v", err)
	}

	// Encrypted data should not match original
	if string(encryptedData) == string(testData) {
		t.Error("Data was not encrypted")
	}

	// Test Load
	loaded, err := storage.Load("test-profile")
	if err != nil {
		t.Errorf("Load failed: %v", err)
	}

	if string(loaded) != string(testData) {
		t.Errorf("Loaded data doesn't match original. Got: %s, Want: %s", string(loaded), string(testData))
	}

	// Test Delete
	err = storage.Delete("test-profile")
	if err != nil {
		t.Errorf("Delete failed: %v", err)
	}

	// Verify file is deleted
	if _, err := os.Stat(credFile); !os.IsNotExist(err) {
		t.Error("File was not deleted")
	}
}

func TestPlainFileStorage(t *testing.T) {
	tmpDir := t.TempDir()

	storage := NewPlainFileStorage(tmpDir)
	testData := []byte(`{"profile":"test","accessToken":"test-token"}`)

	err := storage.Save("test-profile", testData)
	if err != nil {
		t.Errorf("Save failed: %v", err)
	}

	loaded, err := storage.Load("test-profile")
	if err != nil {
		t.Errorf("Load failed: %v", err)
	}

	if string(loaded) != string(testData) {
		t.Errorf("Loaded data doesn't match. Got: %s, Want: %s", string(loaded), string(testData))
	}

	err = storage.Delete("test-profile")
	if err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}

func TestEncryptionKeyReuse(t *testing.T) {
	tmpDir := t.TempDir()

	first, err := NewEncryptedFileStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create encrypted storage: %v", err)
	}

	testData := []byte("secret payload")
	if err := first.Save("profile", testData); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A second storage over the same directory must reuse the key file
	// and decrypt what the first one wrote.
	second, err := NewEncryptedFileStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to reopen encrypted storage: %v", err)
	}

	loaded, err := second.Load("profile")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded) != string(testData) {
		t.Errorf("Loaded data doesn't match. Got: %s, Want: %s", string(loaded), string(testData))
	}
}

func TestLoad_MissingProfile(t *testing.T) {
	storage := NewPlainFileStorage(t.TempDir())

	if _, err := storage.Load("nonexistent"); err == nil {
		t.Error("Expected error for missing profile")
	}
}
