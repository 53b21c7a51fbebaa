package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/publish"
	"github.com/tjfontaine/scene-gateway/internal/storage"
)

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "default", cfg: config.StorageConfig{}},
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "scene.db")}},
		{name: "postgres without dsn", cfg: config.StorageConfig{Type: "postgres"}, wantErr: true},
		{name: "unknown", cfg: config.StorageConfig{Type: "mongo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(tt.cfg)
			if tt.wantErr {
				if err == nil {
					store.Close()
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openStore() error = %v", err)
			}
			defer store.Close()

			ctx := context.Background()
			turn := &storage.Turn{
				ConversationID: "conv-1",
				UserText:       "hi",
				AssistantText:  "hello",
				Directive:      &domain.Directive{VizState: domain.VizOverview},
			}
			if err := store.SaveTurn(ctx, turn); err != nil {
				t.Fatalf("SaveTurn() error = %v", err)
			}
			d, err := store.LastDirective(ctx, "conv-1")
			if err != nil || d == nil || d.VizState != domain.VizOverview {
				t.Errorf("LastDirective() = %+v, %v", d, err)
			}
		})
	}
}

func TestOpenPublisher_Disabled(t *testing.T) {
	p, err := openPublisher(config.MQTTConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("openPublisher() error = %v", err)
	}
	if _, ok := p.(publish.Noop); !ok {
		t.Errorf("publisher = %T, want publish.Noop", p)
	}
}

func TestOpenPublisher_EnabledWithoutBroker(t *testing.T) {
	_, err := openPublisher(config.MQTTConfig{Enabled: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected an error without a broker url")
	}
}

func TestRun_UnknownLabelLocale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("directive:\n  label_locale: fr\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "label_locale") {
		t.Errorf("run() error = %v, want label_locale rejection", err)
	}
}
