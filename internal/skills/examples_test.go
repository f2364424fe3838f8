package skills

import (
	"testing"
)

func TestExampleSkills(t *testing.T) {
	st := LoadStore(StoreOptions{Dirs: []string{"../../examples/skills"}})

	if errs := st.Errors(); len(errs) > 0 {
		t.Fatalf("expected bundled skills to load cleanly, got %v", errs)
	}
	for _, name := range []string{"customer_overview", "overdue_invoices", "new_lead"} {
		if st.Get(name) == nil {
			t.Errorf("expected example skill %s, got %v", name, st.Names())
		}
	}

	lead := st.Get("new_lead")
	if lead == nil {
		return
	}
	if v, ok := lead.Vars["source"]; !ok || v.Default != "Website" {
		t.Errorf("expected source default Website, got %+v", lead.Vars["source"])
	}
	if len(lead.Workflow.Steps) != 2 || lead.Workflow.Steps[1].Label != "follow_up" {
		t.Errorf("expected two steps ending in follow_up, got %+v", lead.Workflow.Steps)
	}
}
