package cli

import (
	"testing"

	"github.com/onemirror/onemirror/internal/types"
)

func TestParseOverwritePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    types.OverwritePolicy
		wantErr bool
	}{
		{"never", types.OverwriteNever, false},
		{"", types.OverwriteNever, false},
		{"if-newer", types.OverwriteIfNewer, false},
		{"always", types.OverwriteAlways, false},
		{"sometimes", types.OverwriteNever, true},
	}

	for _, tt := range tests {
		got, err := parseOverwritePolicy(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseOverwritePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseOverwritePolicy(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestBackupSummaryTable(t *testing.T) {
	summary := backupSummary{
		FolderID:         "root",
		Destination:      "/backups/drive",
		Processed:        42,
		Skipped:          3,
		Errors:           1,
		BytesTransferred: 1048576,
		ElapsedSeconds:   12.5,
	}

	renderer := summary.AsTableRenderer()
	if len(renderer.Headers()) != 5 {
		t.Errorf("expected 5 headers, got %d", len(renderer.Headers()))
	}
	rows := renderer.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0] != "42" {
		t.Errorf("expected processed count 42, got %s", rows[0][0])
	}
	if rows[0][2] != "1" {
		t.Errorf("expected error count 1, got %s", rows[0][2])
	}
}

func TestValidateGlobalFlags(t *testing.T) {
	saved := globalFlags
	defer func() { globalFlags = saved }()

	globalFlags.OutputFormat = types.OutputFormatTable
	globalFlags.JSON = false
	if err := validateGlobalFlags(); err != nil {
		t.Errorf("table format should be valid: %v", err)
	}

	globalFlags.JSON = true
	if err := validateGlobalFlags(); err != nil {
		t.Errorf("--json alias should be valid: %v", err)
	}
	if globalFlags.OutputFormat != types.OutputFormatJSON {
		t.Error("--json should force json output format")
	}

	globalFlags.JSON = false
	globalFlags.OutputFormat = "xml"
	if err := validateGlobalFlags(); err == nil {
		t.Error("expected error for unsupported output format")
	}
}
