package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes", 1024, "1.00KB"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Gigabytes", 1024 * 1024 * 1024, "1.00GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFileBLAKE3(t *testing.T) {
	tempDir := t.TempDir()

	testContent := []byte("this is test content for hashing")
	// b3sum of the content above
	expectedBlake3 := "B3C004D66E2A918576F44266A57BBCF854B79ED13D068A6A0EF5156C3CF41B74"

	testFilePath := filepath.Join(tempDir, "test_hash_file.txt")
	if err := os.WriteFile(testFilePath, testContent, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	got, err := FileBLAKE3(testFilePath)
	if err != nil {
		t.Fatalf("FileBLAKE3(%q) returned error: %v", testFilePath, err)
	}
	if got != expectedBlake3 {
		t.Errorf("FileBLAKE3(%q) = %q, want %q", testFilePath, got, expectedBlake3)
	}

	if _, err := FileBLAKE3(filepath.Join(tempDir, "missing.txt")); err == nil {
		t.Error("FileBLAKE3 on a missing file should return an error")
	}

	tests := []struct {
		name     string
		filepath string
		expected string
		want     bool
	}{
		{"Match uppercase", testFilePath, expectedBlake3, true},
		{"Match lowercase", testFilePath, strings.ToLower(expectedBlake3), true},
		{"Mismatch", testFilePath, "incorrecthash", false},
		{"Empty expected", testFilePath, "", false},
		{"Missing file", filepath.Join(tempDir, "missing.txt"), expectedBlake3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckBLAKE3(tt.filepath, tt.expected); got != tt.want {
				t.Errorf("CheckBLAKE3(%q, %q) = %v, want %v", tt.filepath, tt.expected, got, tt.want)
			}
		})
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	baseTempDir := t.TempDir()

	tests := []struct {
		name       string
		dirToMake  string // relative to baseTempDir
		wantResult bool
		wantExists bool
	}{
		{
			name:       "Create simple directory",
			dirToMake:  "new_dir",
			wantResult: true,
			wantExists: true,
		},
		{
			name:       "Create nested directory",
			dirToMake:  filepath.Join("nested", "dir", "to", "create"),
			wantResult: true,
			wantExists: true,
		},
		{
			name:       "Attempt to create directory that is a file",
			dirToMake:  "existing_file.txt",
			wantResult: false,
			wantExists: false,
		},
		{
			name:       "Directory already exists",
			dirToMake:  "already_exists",
			wantResult: true,
			wantExists: true,
		},
	}

	// Pre-create structures needed for certain tests
	if err := os.Mkdir(filepath.Join(baseTempDir, "already_exists"), 0755); err != nil {
		t.Fatalf("Failed to pre-create directory: %v", err)
	}
	if _, err := os.Create(filepath.Join(baseTempDir, "existing_file.txt")); err != nil {
		t.Fatalf("Failed to pre-create file: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fullPath := filepath.Join(baseTempDir, tt.dirToMake)
			gotResult := CheckAndMakeDir(fullPath)

			if gotResult != tt.wantResult {
				t.Errorf("CheckAndMakeDir(%q) = %v, want %v", fullPath, gotResult, tt.wantResult)
			}

			info, err := os.Stat(fullPath)
			gotExists := err == nil && info.IsDir()
			if gotExists != tt.wantExists {
				t.Errorf("CheckAndMakeDir(%q): directory exists = %v, want %v", fullPath, gotExists, tt.wantExists)
			}
		})
	}
}
