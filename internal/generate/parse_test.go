package generate

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/54b3r/reqpilot-go/internal/state"
)

const impactOutput = `
{
  "modules": [
    { "module": "auth", "level": "high", "reason": "New OAuth2 flow replaces session login, as in PROJ-101." },
    { "module": "web", "level": "low", "reason": "Login page gains provider buttons." }
  ],
  "summary": "The change concentrates in the auth module with a minor web surface change."
}`

const effortOutput = `
{
  "person_days": 8.5,
  "confidence": 0.7,
  "rationale": "PROJ-101 recorded 8 days for a comparable provider integration."
}`

const designOutput = "```json\n" + `
{
  "design_doc": "## Overview\nAdd OAuth2 login.\n\n## Affected Modules\n- auth\n\n## Approach\n1. Provider config.\n\n## Risks\n- Token expiry races."
}` + "\n```"

const storiesOutput = `
{
  "stories": [
    {
      "title": "Login with Google",
      "description": "As a user, I want to sign in with Google, so that I avoid a separate password.",
      "acceptance_criteria": ["Google button appears on the login page", "Successful auth creates a session"]
    }
  ]
}`

func Test_ParseImpact(t *testing.T) {
	t.Parallel()

	impact, err := ParseImpact(impactOutput)
	if err != nil {
		t.Fatalf("ParseImpact() error = %v", err)
	}

	want := &state.ImpactAssessment{
		Modules: []state.ModuleImpact{
			{Module: "auth", Level: "high", Reason: "New OAuth2 flow replaces session login, as in PROJ-101."},
			{Module: "web", Level: "low", Reason: "Login page gains provider buttons."},
		},
		Summary: "The change concentrates in the auth module with a minor web surface change.",
	}
	if diff := cmp.Diff(want, impact); diff != "" {
		t.Errorf("impact mismatch (-want +got):\n%s", diff)
	}
}

func Test_ParseImpact_NoModules(t *testing.T) {
	t.Parallel()

	if _, err := ParseImpact(`{"modules": [], "summary": "nothing"}`); err == nil {
		t.Error("ParseImpact() expected error for empty module list, got nil")
	}
}

func Test_ParseEffort(t *testing.T) {
	t.Parallel()

	effort, err := ParseEffort(effortOutput)
	if err != nil {
		t.Fatalf("ParseEffort() error = %v", err)
	}
	if effort.PersonDays != 8.5 {
		t.Errorf("PersonDays = %v, want 8.5", effort.PersonDays)
	}
	if effort.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", effort.Confidence)
	}
}

func Test_ParseEffort_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		output string
	}{
		{"non-positive person days", `{"person_days": 0, "confidence": 0.5, "rationale": "x"}`},
		{"confidence above one", `{"person_days": 3, "confidence": 1.5, "rationale": "x"}`},
		{"not json", "I estimate about a week."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseEffort(tc.output); err == nil {
				t.Errorf("ParseEffort(%q) expected error, got nil", tc.output)
			}
		})
	}
}

func Test_ParseDesign_StripsFencing(t *testing.T) {
	t.Parallel()

	doc, err := ParseDesign(designOutput)
	if err != nil {
		t.Fatalf("ParseDesign() error = %v", err)
	}
	if doc == "" || doc[:11] != "## Overview" {
		t.Errorf("design doc does not start with overview section: %q", doc)
	}
}

func Test_ParseDesign_Empty(t *testing.T) {
	t.Parallel()

	if _, err := ParseDesign(`{"design_doc": "   "}`); err == nil {
		t.Error("ParseDesign() expected error for blank document, got nil")
	}
}

func Test_ParseStories(t *testing.T) {
	t.Parallel()

	stories, err := ParseStories(storiesOutput)
	if err != nil {
		t.Fatalf("ParseStories() error = %v", err)
	}
	if len(stories) != 1 {
		t.Fatalf("len(stories) = %d, want 1", len(stories))
	}
	if stories[0].Title != "Login with Google" {
		t.Errorf("Title = %q, want %q", stories[0].Title, "Login with Google")
	}
	if len(stories[0].AcceptanceCriteria) != 2 {
		t.Errorf("len(AcceptanceCriteria) = %d, want 2", len(stories[0].AcceptanceCriteria))
	}
}

func Test_ParseStories_EmptyTitle(t *testing.T) {
	t.Parallel()

	if _, err := ParseStories(`{"stories": [{"title": "", "description": "x"}]}`); err == nil {
		t.Error("ParseStories() expected error for empty title, got nil")
	}
}
