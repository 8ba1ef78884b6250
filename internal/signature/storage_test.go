package signature

import (
	"context"
	"os"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) (*bolt.DB, func()) {
	tmpfile, err := os.CreateTemp("", "signature_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	db, err := bolt.Open(tmpfile.Name(), 0600, nil)
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to open db: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(tmpfile.Name())
	}

	return db, cleanup
}

func testTemplate(name, orgID string) *Template {
	return &Template{
		Name:  name,
		OrgID: orgID,
		Blocks: []Block{
			{Type: BlockText, Content: "Jane Doe"},
			{Type: BlockVariable, Field: "title"},
		},
	}
}

func TestStorage_Create(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage, err := NewStorage(db)
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}

	ctx := context.Background()
	tmpl := testTemplate("default", "org-1")

	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if tmpl.ID == "" {
		t.Error("Create() did not set ID")
	}
	if tmpl.Version != 1 {
		t.Errorf("Create() version = %d, want 1", tmpl.Version)
	}
	if tmpl.CreatedAt.IsZero() {
		t.Error("Create() did not set CreatedAt")
	}

	// Duplicate name in the same org is rejected
	if err := storage.Create(ctx, testTemplate("default", "org-1")); err == nil {
		t.Error("Create() allowed duplicate name in same org")
	}

	// Same name in another org is fine
	if err := storage.Create(ctx, testTemplate("default", "org-2")); err != nil {
		t.Errorf("Create() rejected same name in different org: %v", err)
	}
}

func TestStorage_CreateValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage, _ := NewStorage(db)
	ctx := context.Background()

	tests := []struct {
		name string
		tmpl *Template
	}{
		{"missing name", &Template{OrgID: "org-1"}},
		{"missing org", &Template{Name: "default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := storage.Create(ctx, tt.tmpl); err == nil {
				t.Error("Create() accepted invalid template")
			}
		})
	}
}

func TestStorage_GetAndGetByName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage, _ := NewStorage(db)
	ctx := context.Background()

	tmpl := testTemplate("default", "org-1")
	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := storage.Get(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Name != "default" {
		t.Errorf("Get() = %+v, want name default", got)
	}
	if len(got.Blocks) != 2 {
		t.Errorf("Get() blocks = %d, want 2", len(got.Blocks))
	}
	if got.Blocks[0].Type != BlockText {
		t.Errorf("Get() first block type = %q, want text", got.Blocks[0].Type)
	}

	byName, err := storage.GetByName(ctx, "org-1", "default")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if byName == nil || byName.ID != tmpl.ID {
		t.Errorf("GetByName() = %+v, want id %s", byName, tmpl.ID)
	}

	missing, err := storage.Get(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if missing != nil {
		t.Errorf("Get() for missing id = %+v, want nil", missing)
	}
}

func TestStorage_Update(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage, _ := NewStorage(db)
	ctx := context.Background()

	tmpl := testTemplate("default", "org-1")
	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tmpl.Name = "primary"
	tmpl.Blocks = append(tmpl.Blocks, Block{Type: BlockDivider})
	if err := storage.Update(ctx, tmpl); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if tmpl.Version != 2 {
		t.Errorf("Update() version = %d, want 2", tmpl.Version)
	}

	// Old name index is gone, new one works
	old, _ := storage.GetByName(ctx, "org-1", "default")
	if old != nil {
		t.Error("old name still resolves after rename")
	}
	renamed, _ := storage.GetByName(ctx, "org-1", "primary")
	if renamed == nil || len(renamed.Blocks) != 3 {
		t.Errorf("renamed template = %+v, want 3 blocks", renamed)
	}
}

func TestStorage_ListByOrg(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage, _ := NewStorage(db)
	ctx := context.Background()

	for _, spec := range []struct{ name, org string }{
		{"sales", "org-1"},
		{"support", "org-1"},
		{"default", "org-2"},
	} {
		if err := storage.Create(ctx, testTemplate(spec.name, spec.org)); err != nil {
			t.Fatalf("Create(%s) error = %v", spec.name, err)
		}
	}

	org1, err := storage.List(ctx, ListFilter{OrgID: "org-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(org1) != 2 {
		t.Errorf("List(org-1) = %d templates, want 2", len(org1))
	}

	searched, err := storage.List(ctx, ListFilter{OrgID: "org-1", Search: "sal"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(searched) != 1 || searched[0].Name != "sales" {
		t.Errorf("List(search=sal) = %+v, want [sales]", searched)
	}
}

func TestStorage_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage, _ := NewStorage(db)
	ctx := context.Background()

	tmpl := testTemplate("default", "org-1")
	if err := storage.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := storage.Delete(ctx, tmpl.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, _ := storage.Get(ctx, tmpl.ID)
	if got != nil {
		t.Error("template still present after delete")
	}

	// Name is free again
	if err := storage.Create(ctx, testTemplate("default", "org-1")); err != nil {
		t.Errorf("name not released after delete: %v", err)
	}

	// Deleting a missing template is not an error
	if err := storage.Delete(ctx, "no-such-id"); err != nil {
		t.Errorf("Delete() of missing id error = %v", err)
	}
}
