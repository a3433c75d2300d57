package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/ternarybob/cursus/internal/models"
)

func noopHandler(ctx context.Context, params []any) (any, error) {
	return nil, nil
}

func descriptor(name string) *models.ActionDescriptor {
	return &models.ActionDescriptor{
		Name:        name,
		Concurrency: models.ConcurrencyLocks,
		Handler:     noopHandler,
	}
}

func testCatalog() []CourseMeta {
	return []CourseMeta{
		{
			Type:    "essay",
			Actions: []*models.ActionDescriptor{descriptor("enroll")},
			Phases: []PhaseMeta{
				{
					Type:    "writing",
					Actions: []*models.ActionDescriptor{descriptor("provision")},
					Tasks: []TaskMeta{
						{
							Type:    "draft",
							Actions: []*models.ActionDescriptor{descriptor("grade"), descriptor("poll")},
						},
					},
				},
				{
					Type: "review",
					Tasks: []TaskMeta{
						// Same action name under a different scope is legal
						{Type: "draft", Actions: []*models.ActionDescriptor{descriptor("grade")}},
					},
				},
			},
		},
		{
			Type:    "lab",
			Actions: []*models.ActionDescriptor{descriptor("enroll")},
		},
	}
}

func TestNewRegistryBuildsTable(t *testing.T) {
	r, err := NewRegistry(testCatalog(), nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	names := r.ListActions()
	want := []string{
		"essay.enroll",
		"essay.review.draft.grade",
		"essay.writing.draft.grade",
		"essay.writing.draft.poll",
		"essay.writing.provision",
		"lab.enroll",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d actions, got %d: %v", len(want), len(names), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("action %d: expected %s, got %s", i, name, names[i])
		}
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	catalog := testCatalog()
	catalog[0].Actions = append(catalog[0].Actions, descriptor("enroll"))

	_, err := NewRegistry(catalog, nil)
	if !errors.Is(err, models.ErrDuplicateAction) {
		t.Fatalf("expected ErrDuplicateAction, got %v", err)
	}
}

func TestNewRegistryRejectsMalformedDescriptors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]CourseMeta)
	}{
		{"missing handler", func(c []CourseMeta) { c[0].Actions[0].Handler = nil }},
		{"missing name", func(c []CourseMeta) { c[0].Actions[0].Name = "" }},
		{"bad concurrency", func(c []CourseMeta) { c[0].Actions[0].Concurrency = "parallel" }},
		{"empty course type", func(c []CourseMeta) { c[0].Type = "" }},
		{"empty phase type", func(c []CourseMeta) { c[0].Phases[0].Type = "" }},
		{"empty task type", func(c []CourseMeta) { c[0].Phases[0].Tasks[0].Type = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := testCatalog()
			tt.mutate(catalog)
			if _, err := NewRegistry(catalog, nil); err == nil {
				t.Fatal("expected registration error, got nil")
			}
		})
	}
}

func TestLookup(t *testing.T) {
	r, err := NewRegistry(testCatalog(), nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	desc, err := r.Lookup(models.LevelTask, "essay.writing.draft", "grade")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if desc.Name != "grade" {
		t.Errorf("expected grade, got %s", desc.Name)
	}

	_, err = r.Lookup(models.LevelTask, "essay.writing.draft", "submit")
	if !errors.Is(err, models.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}

	// Same scope string at the wrong level does not resolve
	_, err = r.Lookup(models.LevelPhase, "essay.writing.draft", "grade")
	if !errors.Is(err, models.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction for wrong level, got %v", err)
	}
}

func TestResolveDottedName(t *testing.T) {
	r, err := NewRegistry(testCatalog(), nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	tests := []struct {
		dotted    string
		level     models.Level
		scopeType string
	}{
		{"essay.enroll", models.LevelCourse, "essay"},
		{"essay.writing.provision", models.LevelPhase, "writing"},
		{"essay.writing.draft.grade", models.LevelTask, "draft"},
		{"essay.review.draft.grade", models.LevelTask, "draft"},
	}

	for _, tt := range tests {
		t.Run(tt.dotted, func(t *testing.T) {
			res, err := r.ResolveDottedName(tt.dotted)
			if err != nil {
				t.Fatalf("ResolveDottedName(%q) failed: %v", tt.dotted, err)
			}
			if res.Level != tt.level {
				t.Errorf("expected level %s, got %s", tt.level, res.Level)
			}
			if res.ScopeType() != tt.scopeType {
				t.Errorf("expected scope type %s, got %s", tt.scopeType, res.ScopeType())
			}
			if res.Descriptor == nil {
				t.Error("expected a resolved descriptor")
			}
		})
	}
}

func TestResolveDottedNameFailures(t *testing.T) {
	r, err := NewRegistry(testCatalog(), nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	tests := []string{
		"grade",                         // Too few segments
		"a.b.c.d.e",                     // Too many segments
		"essay..grade",                  // Empty segment
		"chemistry.enroll",              // Unknown course type
		"essay.reading.provision",       // Unknown phase type
		"essay.writing.final.grade",     // Unknown task type
		"essay.writing.draft.submit",    // Unregistered action name
		"essay.writing.draft.provision", // Phase action name at task depth
	}

	for _, dotted := range tests {
		t.Run(dotted, func(t *testing.T) {
			if _, err := r.ResolveDottedName(dotted); !errors.Is(err, models.ErrInvalidActionPath) {
				t.Fatalf("expected ErrInvalidActionPath, got %v", err)
			}
		})
	}
}
