package database

import (
	"path/filepath"
	"testing"

	"geopark-pipeline/internal/logger"
)

func TestIsSQLite(t *testing.T) {
	tests := []struct {
		conn string
		want bool
	}{
		{"sqlite:/tmp/x.db", true},
		{"sqlite:", true},
		{"user:pass@tcp(localhost:3306)/market_data", false},
		{"mongodb://localhost:27017", false},
	}
	for _, tt := range tests {
		if got := IsSQLite(tt.conn); got != tt.want {
			t.Errorf("IsSQLite(%q) = %v, want %v", tt.conn, got, tt.want)
		}
	}
}

func TestInitializeSQLite(t *testing.T) {
	conn := SQLitePrefix + filepath.Join(t.TempDir(), "pipeline.db")
	db, err := Initialize(conn, logger.Discard())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer Close(db)

	if name := db.Dialector.Name(); name != "sqlite" {
		t.Errorf("dialector = %q, want sqlite", name)
	}
	var one int
	if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
		t.Errorf("SELECT 1 = %d, %v", one, err)
	}
}

func TestInitializeEmpty(t *testing.T) {
	if _, err := Initialize("", logger.Discard()); err == nil {
		t.Error("expected error for empty connection string")
	}
}
