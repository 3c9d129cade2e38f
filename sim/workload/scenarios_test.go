package workload

import (
	"testing"
)

func TestPresets_Validate(t *testing.T) {
	// Every built-in preset must pass validation and generate demands.
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			spec, err := Preset(name, 42, 0.5, 500)
			if err != nil {
				t.Fatal(err)
			}
			if err := spec.Validate(); err != nil {
				t.Fatalf("preset %s failed validation: %v", name, err)
			}
			demands, err := Generate(spec)
			if err != nil {
				t.Fatal(err)
			}
			if len(demands) == 0 {
				t.Errorf("preset %s generated no demands", name)
			}
			for _, d := range demands {
				if d.Resource != PresetResource {
					t.Errorf("demand %s targets %q, want %q", d.ID, d.Resource, PresetResource)
				}
			}
		})
	}
}

func TestPresets_SplitAggregateRate(t *testing.T) {
	spec := ScenarioUnfairClients(1, 2.0, 100)
	var total float64
	for _, c := range spec.Clients {
		total += c.Rate
	}
	if total < 1.999 || total > 2.001 {
		t.Errorf("client rates sum to %v, want 2.0", total)
	}
}

func TestPreset_Unknown(t *testing.T) {
	if _, err := Preset("nope", 1, 1, 10); err == nil {
		t.Error("expected error for unknown preset")
	}
}
