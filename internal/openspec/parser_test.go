package openspec

import "testing"

func TestParseTasksGroupsAndSteps(t *testing.T) {
	content := `
1. Add the widget endpoint
   - [ ] write handler
   - [x] write tests
2. Document the endpoint
   - update README
`
	groups := ParseTasks(content, "add-widgets")
	if len(groups) != 2 {
		t.Fatalf("ParseTasks() returned %d groups, want 2", len(groups))
	}
	if groups[0].Title != "Add the widget endpoint" {
		t.Errorf("groups[0].Title = %q", groups[0].Title)
	}
	if len(groups[0].Steps) != 2 || groups[0].Steps[0] != "write handler" || groups[0].Steps[1] != "write tests" {
		t.Errorf("groups[0].Steps = %v, want checkbox markers stripped", groups[0].Steps)
	}
	if groups[1].Title != "Document the endpoint" {
		t.Errorf("groups[1].Title = %q", groups[1].Title)
	}
}

func TestParseTasksNoGroupsFallsBackToChangeName(t *testing.T) {
	groups := ParseTasks("just some prose, no numbered items", "my-change")
	if len(groups) != 1 {
		t.Fatalf("ParseTasks() returned %d groups, want 1", len(groups))
	}
	if groups[0].Title != "my-change" {
		t.Errorf("groups[0].Title = %q, want my-change", groups[0].Title)
	}
	if len(groups[0].Steps) != 0 {
		t.Errorf("groups[0].Steps = %v, want none", groups[0].Steps)
	}
}

func TestParseSpecRequirementsAndScenarios(t *testing.T) {
	content := `
### Requirement: The system must validate input

- GIVEN an empty payload
- WHEN the request is submitted
- THEN it is rejected
- AND no record is created
`
	reqs, steps := ParseSpec(content)
	if len(reqs) != 1 || reqs[0] != "The system must validate input" {
		t.Errorf("requirements = %v", reqs)
	}
	if len(steps) != 4 {
		t.Fatalf("verification steps = %v, want 4", steps)
	}
	if steps[0] != "GIVEN an empty payload verified" {
		t.Errorf("steps[0] = %q", steps[0])
	}
}
