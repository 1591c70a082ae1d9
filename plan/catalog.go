package plan

import "fmt"

// Pool groups templates that can fill the same block of a session.
type Pool string

const (
	PoolRelaxation Pool = "relaxation"
	PoolVisual     Pool = "visual"
	PoolCognitive  Pool = "cognitive"
	PoolFluency    Pool = "fluency"
	PoolCreative   Pool = "creative"
)

// Template is a curated activity definition. Harder templates are only
// offered to learners older than the generator's age threshold.
type Template struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Type   ActivityType `json:"type"`
	Pool   Pool         `json:"pool"`
	Harder bool         `json:"harder,omitempty"`
	Config Config       `json:"config"`
}

// Block is one themed segment of a daily session.
type Block struct {
	Name  string `json:"name"`
	Pool  Pool   `json:"pool"`
	Count int    `json:"count"`
}

// DefaultBlocks is the fixed session shape: 1+2+3+3+1 activities.
var DefaultBlocks = []Block{
	{Name: "warm-up", Pool: PoolRelaxation, Count: 1},
	{Name: "fast-encoding", Pool: PoolVisual, Count: 2},
	{Name: "working-memory", Pool: PoolCognitive, Count: 3},
	{Name: "fluency", Pool: PoolFluency, Count: 3},
	{Name: "cool-down", Pool: PoolCreative, Count: 1},
}

// Catalog is the set of templates the generator draws from.
type Catalog []Template

// Pool returns the templates of p available to a learner; harder templates
// are included only when includeHarder is set. Catalog order is preserved.
func (c Catalog) Pool(p Pool, includeHarder bool) []Template {
	var out []Template
	for _, t := range c {
		if t.Pool != p {
			continue
		}
		if t.Harder && !includeHarder {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Validate checks template ids are unique, every config matches its
// template type, and every block has at least one template to draw from.
func (c Catalog) Validate(blocks []Block) error {
	seen := make(map[string]bool, len(c))
	for _, t := range c {
		if t.ID == "" {
			return fmt.Errorf("plan: template with empty id")
		}
		if seen[t.ID] {
			return fmt.Errorf("plan: duplicate template id %q", t.ID)
		}
		seen[t.ID] = true
		if t.Config == nil || t.Config.Type() != t.Type {
			return fmt.Errorf("plan: template %q: %w", t.ID, ErrConfigMismatch)
		}
		if err := t.Config.Validate(); err != nil {
			return fmt.Errorf("plan: template %q: %w", t.ID, err)
		}
	}
	for _, b := range blocks {
		if b.Count < 1 {
			return fmt.Errorf("plan: block %q requests no activities", b.Name)
		}
		if len(c.Pool(b.Pool, false)) == 0 {
			return fmt.Errorf("plan: block %q: pool %q is empty", b.Name, b.Pool)
		}
	}
	return nil
}

// DefaultCatalog returns the built-in templates. Every base pool holds at
// least as many templates as its block requests.
func DefaultCatalog() Catalog {
	return Catalog{
		// Relaxation
		{ID: "breathe-balloon", Title: "Balloon Breathing", Type: TypeBreathing, Pool: PoolRelaxation,
			Config: BreathingConfig{Cycles: 4, InhaleSeconds: 3, ExhaleSeconds: 4}},
		{ID: "breathe-starfish", Title: "Starfish Hand", Type: TypeBreathing, Pool: PoolRelaxation,
			Config: BreathingConfig{Cycles: 5, InhaleSeconds: 3, ExhaleSeconds: 3}},
		{ID: "sleepy-bear", Title: "Sleepy Bear", Type: TypeBreathing, Pool: PoolRelaxation,
			Config: BreathingConfig{Cycles: 3, InhaleSeconds: 4, ExhaleSeconds: 5}},
		{ID: "box-breathing", Title: "Box Breathing", Type: TypeBreathing, Pool: PoolRelaxation, Harder: true,
			Config: BreathingConfig{Cycles: 4, InhaleSeconds: 4, HoldSeconds: 4, ExhaleSeconds: 4}},

		// Fast encoding
		{ID: "flash-animals", Title: "Animal Flash", Type: TypeFlashMemory, Pool: PoolVisual,
			Config: FlashMemoryConfig{Items: 4, ExposureMillis: 2000, GridSize: 2, Theme: "animal"}},
		{ID: "flash-toys", Title: "Toy Box", Type: TypeFlashMemory, Pool: PoolVisual,
			Config: FlashMemoryConfig{Items: 5, ExposureMillis: 2000, GridSize: 3, Theme: "toy"}},
		{ID: "shape-train", Title: "Shape Train", Type: TypeSequenceRecall, Pool: PoolVisual,
			Config: SequenceRecallConfig{Length: 3, Symbols: "shapes"}},
		{ID: "color-snake", Title: "Color Snake", Type: TypeSequenceRecall, Pool: PoolVisual,
			Config: SequenceRecallConfig{Length: 4, Symbols: "colors"}},
		{ID: "photo-street", Title: "Busy Street", Type: TypeFlashMemory, Pool: PoolVisual, Harder: true,
			Config: FlashMemoryConfig{Items: 8, ExposureMillis: 1500, GridSize: 3, Theme: "street"}},
		{ID: "flash-grid-9", Title: "Nine Window", Type: TypeFlashMemory, Pool: PoolVisual, Harder: true,
			Config: FlashMemoryConfig{Items: 9, ExposureMillis: 1200, GridSize: 3, Theme: "object"}},

		// Working memory and numeracy
		{ID: "abacus-ones", Title: "Bead Counting", Type: TypeAbacus, Pool: PoolCognitive,
			Config: AbacusConfig{Rods: 1, MaxValue: 9, Operation: "show"}},
		{ID: "abacus-tens", Title: "Tens Tower", Type: TypeAbacus, Pool: PoolCognitive,
			Config: AbacusConfig{Rods: 2, MaxValue: 20, Operation: "add"}},
		{ID: "number-ladder", Title: "Number Ladder", Type: TypeSequenceRecall, Pool: PoolCognitive,
			Config: SequenceRecallConfig{Length: 3, Symbols: "digits"}},
		{ID: "add-within-10", Title: "Pocket Sums", Type: TypeMentalMath, Pool: PoolCognitive,
			Config: MentalMathConfig{Operands: 2, MaxOperand: 5, Operators: []string{"+"}}},
		{ID: "abacus-hundreds", Title: "Hundred Hill", Type: TypeAbacus, Pool: PoolCognitive, Harder: true,
			Config: AbacusConfig{Rods: 3, MaxValue: 200, Operation: "subtract"}},
		{ID: "sums-to-20", Title: "Market Maths", Type: TypeMentalMath, Pool: PoolCognitive, Harder: true,
			Config: MentalMathConfig{Operands: 3, MaxOperand: 10, Operators: []string{"+", "-"}}},
		{ID: "digit-span-back", Title: "Backwards Robot", Type: TypeSequenceRecall, Pool: PoolCognitive, Harder: true,
			Config: SequenceRecallConfig{Length: 5, Symbols: "digits", Reverse: true}},

		// Fluency and attention
		{ID: "sort-fruit-veg", Title: "Fruit or Veg", Type: TypeSpeedSort, Pool: PoolFluency,
			Config: SpeedSortConfig{Categories: []string{"fruit", "vegetable"}, Items: 10, TimeLimitSeconds: 45}},
		{ID: "sort-colors", Title: "Color Buckets", Type: TypeSpeedSort, Pool: PoolFluency,
			Config: SpeedSortConfig{Categories: []string{"red", "blue", "yellow"}, Items: 12, TimeLimitSeconds: 45}},
		{ID: "find-the-star", Title: "Find the Star", Type: TypeFocus, Pool: PoolFluency,
			Config: FocusConfig{Targets: 5, Distractors: 10, DurationSeconds: 40}},
		{ID: "odd-one-out", Title: "Odd One Out", Type: TypeFocus, Pool: PoolFluency,
			Config: FocusConfig{Targets: 6, Distractors: 6, DurationSeconds: 40}},
		{ID: "sort-three-way", Title: "Land Sea Sky", Type: TypeSpeedSort, Pool: PoolFluency, Harder: true,
			Config: SpeedSortConfig{Categories: []string{"land", "sea", "sky"}, Items: 18, TimeLimitSeconds: 40}},
		{ID: "flanker-fish", Title: "Fish School", Type: TypeFocus, Pool: PoolFluency, Harder: true,
			Config: FocusConfig{Targets: 12, Distractors: 24, DurationSeconds: 60}},

		// Creative cool-down
		{ID: "draw-my-day", Title: "Draw My Day", Type: TypeCreative, Pool: PoolCreative,
			Config: CreativeConfig{Medium: "draw", Prompt: "draw the best part of your day"}},
		{ID: "story-dice", Title: "Story Dice", Type: TypeCreative, Pool: PoolCreative,
			Config: CreativeConfig{Medium: "story", Prompt: "tell a story about three pictures"}},
		{ID: "rhythm-copy", Title: "Clap Back", Type: TypeCreative, Pool: PoolCreative,
			Config: CreativeConfig{Medium: "music", Prompt: "copy the drum pattern"}},
		{ID: "comic-strip", Title: "Comic Strip", Type: TypeCreative, Pool: PoolCreative, Harder: true,
			Config: CreativeConfig{Medium: "draw", Prompt: "draw a three-panel comic"}},
	}
}
