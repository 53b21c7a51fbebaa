package dialect

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantName    string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", Postgres, "postgres", false},
		{"unknown", DialectType("mysql"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantDriver string
		wantErr    bool
	}{
		{"sqlite", "sqlite", false},
		{"SQLite3", "sqlite", false},
		{"postgres", "pgx", false},
		{"pgx", "pgx", false},
		{"memory", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.DriverName() != tt.wantDriver {
				t.Errorf("DriverName() = %v, want %v", d.DriverName(), tt.wantDriver)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM turns WHERE conversation_id = ? AND id > ? LIMIT ?"

	s, _ := New(SQLite)
	if got := s.Rebind(q); got != q {
		t.Errorf("sqlite Rebind() = %q", got)
	}

	p, _ := New(Postgres)
	want := "SELECT * FROM turns WHERE conversation_id = $1 AND id > $2 LIMIT $3"
	if got := p.Rebind(q); got != want {
		t.Errorf("postgres Rebind() = %q, want %q", got, want)
	}
}

func TestUpsertClause(t *testing.T) {
	s, _ := New(SQLite)
	if got := s.UpsertClause("id", []string{"updated_at"}); got != "ON CONFLICT (id) DO UPDATE SET updated_at = excluded.updated_at" {
		t.Errorf("sqlite UpsertClause() = %q", got)
	}

	p, _ := New(Postgres)
	if got := p.UpsertClause("id", nil); got != "ON CONFLICT (id) DO NOTHING" {
		t.Errorf("postgres UpsertClause() = %q", got)
	}
}
