package db

import (
	"context"
	"testing"
	"time"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/storage"
)

func TestOpen_SQLiteMigrates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dbh, err := Open(ctx, DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dbh.Close()

	reg := storage.NewSQLRegistry(dbh)
	want := lti.Registration{
		Issuer:       "https://platform.example.com",
		ClientID:     "tool-client",
		KeySetURL:    "https://platform.example.com/jwks",
		AuthLoginURL: "https://platform.example.com/auth",
	}
	if err := reg.SaveRegistration(ctx, want); err != nil {
		t.Fatalf("SaveRegistration: %v", err)
	}
	got, err := reg.FindRegistration(ctx, want.Issuer, want.ClientID)
	if err != nil {
		t.Fatalf("FindRegistration: %v", err)
	}
	if got.KeySetURL != want.KeySetURL {
		t.Fatalf("KeySetURL = %q", got.KeySetURL)
	}

	// reopening an existing schema is a no-op
	if err := storage.Migrate(ctx, dbh); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), Driver("mysql"), ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
