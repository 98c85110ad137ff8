package db

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestMigrator_InvalidDatabaseURL(t *testing.T) {
	m := NewMigrator("://not-a-url", fstest.MapFS{
		"000001_init.up.sql":   {Data: []byte("SELECT 1;")},
		"000001_init.down.sql": {Data: []byte("SELECT 1;")},
	})

	st, err := m.Status(context.Background(), "tenant_x")
	if err == nil {
		t.Fatal("expected error for invalid database url")
	}
	if st.Schema != "tenant_x" || st.Applied {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestMigrator_CancelledContext(t *testing.T) {
	m := NewMigrator("postgres://localhost:1/none", fstest.MapFS{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Up(ctx, "tenant_x"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
