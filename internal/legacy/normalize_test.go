package legacy

import (
	"testing"
)

func TestParseAlternateFieldNames(t *testing.T) {
	data := []byte(`{
		"projects": [
			{"id": "HT-001", "projectName": "Gantry", "projectValue": "250000", "projectLocation": "Lahore"},
			{"id": "HT-002", "name": "Tank", "budget": 90000, "location": "Karachi"}
		],
		"tasks": [
			{"id": "HT-001-T1", "projectId": "HT-001", "taskName": "Kickoff", "progress": "40"}
		],
		"materials": [
			{"projectId": "HT-001", "materialName": "Cement", "requiredQty": "1000", "dispatchedQty": 200},
			{"projectId": "HT-001", "name": "Plate", "required": 50, "dispatched": "10.5"}
		],
		"expenses": [
			{"projectId": "HT-001", "date": "2026-01-05", "description": "steel", "amount": "1500"}
		]
	}`)

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	p := got.Projects[0]
	if p.Name != "Gantry" || p.Budget != 250000 || p.Location != "Lahore" {
		t.Fatalf("alternate project fields not mapped: %+v", p)
	}
	if q := got.Projects[1]; q.Name != "Tank" || q.Budget != 90000 || q.Location != "Karachi" {
		t.Fatalf("canonical project fields broken: %+v", q)
	}

	task := got.Tasks[0]
	if task.Name != "Kickoff" || task.Progress != 40 {
		t.Fatalf("task not normalized: %+v", task)
	}

	m := got.Materials[0]
	if m.Name != "Cement" || m.Required != 1000 || m.Dispatched != 200 {
		t.Fatalf("material alternate names: %+v", m)
	}
	if m2 := got.Materials[1]; m2.Required != 50 || m2.Dispatched != 10.5 {
		t.Fatalf("string quantity not coerced: %+v", m2)
	}

	if e := got.Expenses[0]; e.Amount != 1500 {
		t.Fatalf("expense amount: %+v", e)
	}
}

func TestParseCoercionAndRejection(t *testing.T) {
	// garbage numeric strings collapse to zero, not an error
	got, err := Parse([]byte(`{"materials": [{"projectId": "P", "name": "Rod", "requiredQty": "lots"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Materials[0].Required != 0 {
		t.Fatalf("unparseable quantity should be 0, got %v", got.Materials[0].Required)
	}

	// negative quantities are clamped
	got, err = Parse([]byte(`{"materials": [{"projectId": "P", "name": "Rod", "requiredQty": -5}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.Materials[0].Required != 0 {
		t.Fatalf("negative quantity should clamp to 0, got %v", got.Materials[0].Required)
	}

	// records without identity are rejected with position
	if _, err := Parse([]byte(`{"projects": [{"projectName": "no id"}]}`)); err == nil {
		t.Fatal("expected error for project without id")
	}
	if _, err := Parse([]byte(`{"tasks": [{"name": "orphan"}]}`)); err == nil {
		t.Fatal("expected error for task without ids")
	}

	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
