package plan

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hyperengineering/sprout/progress"
)

func newTestGenerator(t *testing.T, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithSeed(42), WithClock(func() time.Time {
		return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	})}, opts...)
	g, err := NewGenerator(opts...)
	if err != nil {
		t.Fatalf("NewGenerator() error: %v", err)
	}
	return g
}

func TestGenerate_YoungLearnerGetsTenActivities(t *testing.T) {
	g := newTestGenerator(t)
	acts := g.Generate(LearnerProfile{LearnerID: "kid-1", Age: DefaultAgeThreshold}, progress.Index{})

	if len(acts) != 10 {
		t.Fatalf("Generate() returned %d activities, want 10", len(acts))
	}
	for i, a := range acts {
		if a.TemplateID == "" {
			t.Errorf("activity %d has empty template reference", i)
		}
		if a.ID == "" {
			t.Errorf("activity %d has empty id", i)
		}
		if a.Config == nil || a.Config.Type() != a.Type {
			t.Errorf("activity %d config %T does not match type %q", i, a.Config, a.Type)
		}
	}
}

func TestGenerate_BlockOrderAndNoRepeats(t *testing.T) {
	g := newTestGenerator(t)
	acts := g.Generate(LearnerProfile{Age: 6}, progress.Index{})

	wantBlocks := []string{
		"warm-up",
		"fast-encoding", "fast-encoding",
		"working-memory", "working-memory", "working-memory",
		"fluency", "fluency", "fluency",
		"cool-down",
	}
	seen := map[string]bool{}
	for i, a := range acts {
		if a.Block != wantBlocks[i] {
			t.Errorf("activity %d block = %q, want %q", i, a.Block, wantBlocks[i])
		}
		if seen[a.TemplateID] {
			t.Errorf("template %q drawn twice", a.TemplateID)
		}
		seen[a.TemplateID] = true
	}
}

func TestGenerate_UniqueInstanceIDs(t *testing.T) {
	g := newTestGenerator(t)
	ids := map[string]bool{}
	for i := 0; i < 5; i++ {
		for _, a := range g.Generate(LearnerProfile{Age: 9}, progress.Index{}) {
			if ids[a.ID] {
				t.Fatalf("duplicate instance id %s", a.ID)
			}
			ids[a.ID] = true
		}
	}
}

func TestGenerate_AgeGating(t *testing.T) {
	harder := map[string]bool{}
	for _, tpl := range DefaultCatalog() {
		if tpl.Harder {
			harder[tpl.ID] = true
		}
	}

	g := newTestGenerator(t)
	for i := 0; i < 50; i++ {
		for _, a := range g.Generate(LearnerProfile{Age: DefaultAgeThreshold}, progress.Index{}) {
			if harder[a.TemplateID] {
				t.Fatalf("learner at threshold age got harder template %q", a.TemplateID)
			}
		}
	}

	sawHarder := false
	for i := 0; i < 50 && !sawHarder; i++ {
		for _, a := range g.Generate(LearnerProfile{Age: DefaultAgeThreshold + 1}, progress.Index{}) {
			if harder[a.TemplateID] {
				sawHarder = true
			}
		}
	}
	if !sawHarder {
		t.Error("older learner never received a harder template in 50 plans")
	}
}

func TestGenerate_FiveYearOldGetsHarderTemplates(t *testing.T) {
	harder := map[string]bool{}
	for _, tpl := range DefaultCatalog() {
		harder[tpl.ID] = tpl.Harder
	}

	g := newTestGenerator(t)
	for i := 0; i < 100; i++ {
		for _, a := range g.Generate(LearnerProfile{Age: 5}, progress.Index{}) {
			if harder[a.TemplateID] {
				return
			}
		}
	}
	t.Error("a five-year-old never received a harder template in 100 plans")
}

func TestGenerate_PadsShortPool(t *testing.T) {
	catalog := Catalog{
		{ID: "only-breath", Title: "Breathe", Type: TypeBreathing, Pool: PoolRelaxation,
			Config: BreathingConfig{Cycles: 3, InhaleSeconds: 3, ExhaleSeconds: 3}},
	}
	blocks := []Block{{Name: "warm-up", Pool: PoolRelaxation, Count: 3}}
	g := newTestGenerator(t, WithCatalog(catalog), WithBlocks(blocks))

	acts := g.Generate(LearnerProfile{Age: 4}, progress.Index{})
	if len(acts) != 3 {
		t.Fatalf("Generate() returned %d activities, want 3 (padded)", len(acts))
	}
	for _, a := range acts {
		if a.TemplateID != "only-breath" {
			t.Errorf("unexpected template %q", a.TemplateID)
		}
	}
}

func TestNewGenerator_RejectsBadCatalog(t *testing.T) {
	tests := []struct {
		name    string
		catalog Catalog
	}{
		{"empty pool", Catalog{}},
		{"mismatched config", Catalog{
			{ID: "x", Type: TypeAbacus, Pool: PoolRelaxation, Config: BreathingConfig{Cycles: 1, InhaleSeconds: 1, ExhaleSeconds: 1}},
		}},
		{"duplicate id", Catalog{
			{ID: "x", Type: TypeBreathing, Pool: PoolRelaxation, Config: BreathingConfig{Cycles: 1, InhaleSeconds: 1, ExhaleSeconds: 1}},
			{ID: "x", Type: TypeBreathing, Pool: PoolRelaxation, Config: BreathingConfig{Cycles: 1, InhaleSeconds: 1, ExhaleSeconds: 1}},
		}},
	}
	blocks := []Block{{Name: "warm-up", Pool: PoolRelaxation, Count: 1}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGenerator(WithCatalog(tt.catalog), WithBlocks(blocks)); err == nil {
				t.Error("NewGenerator() = nil error, want validation failure")
			}
		})
	}
}

func TestDefaultCatalog_BasePoolsCoverBlocks(t *testing.T) {
	c := DefaultCatalog()
	for _, b := range DefaultBlocks {
		if n := len(c.Pool(b.Pool, false)); n < b.Count {
			t.Errorf("pool %q has %d base templates, block %q needs %d", b.Pool, n, b.Name, b.Count)
		}
	}
}

func TestActivityInstance_JSONRoundTripKeepsVariant(t *testing.T) {
	g := newTestGenerator(t)
	acts := g.Generate(LearnerProfile{Age: 8}, progress.Index{})

	data, err := json.Marshal(acts)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded []ActivityInstance
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for i := range acts {
		if decoded[i].Config.Type() != acts[i].Type {
			t.Errorf("activity %d decoded as %T", i, decoded[i].Config)
		}
		if Describe(decoded[i].Config) != Describe(acts[i].Config) {
			t.Errorf("activity %d description changed after round trip", i)
		}
	}
}

func TestDecodeConfig_UnknownType(t *testing.T) {
	if _, err := DecodeConfig("juggling", json.RawMessage(`{}`)); err == nil {
		t.Error("DecodeConfig accepted an unknown type")
	}
}
