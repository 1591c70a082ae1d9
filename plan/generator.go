// Package plan builds the ordered list of activities for a learner's daily
// session from a curated, age-gated template catalog.
package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/sprout/progress"
)

// DefaultAgeThreshold is the age above which harder templates join the pools.
const DefaultAgeThreshold = 4

// LearnerProfile is the part of a child's profile the generator looks at.
type LearnerProfile struct {
	LearnerID string `json:"learner_id"`
	Name      string `json:"name,omitempty"`
	Age       int    `json:"age"`
}

// ActivityInstance is one scheduled activity in a session.
type ActivityInstance struct {
	ID         string       `json:"id"`
	TemplateID string       `json:"template_id"`
	Title      string       `json:"title"`
	Type       ActivityType `json:"type"`
	Block      string       `json:"block"`
	Config     Config       `json:"config"`
}

// UnmarshalJSON resolves the Config variant from the instance type.
func (a *ActivityInstance) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string          `json:"id"`
		TemplateID string          `json:"template_id"`
		Title      string          `json:"title"`
		Type       ActivityType    `json:"type"`
		Block      string          `json:"block"`
		Config     json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := DecodeConfig(raw.Type, raw.Config)
	if err != nil {
		return err
	}
	*a = ActivityInstance{
		ID:         raw.ID,
		TemplateID: raw.TemplateID,
		Title:      raw.Title,
		Type:       raw.Type,
		Block:      raw.Block,
		Config:     cfg,
	}
	return nil
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes selection and instance ids reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithAgeThreshold overrides DefaultAgeThreshold.
func WithAgeThreshold(age int) Option {
	return func(g *Generator) { g.ageThreshold = age }
}

// WithCatalog replaces the built-in catalog.
func WithCatalog(c Catalog) Option {
	return func(g *Generator) { g.catalog = c }
}

// WithBlocks replaces the session shape.
func WithBlocks(blocks []Block) Option {
	return func(g *Generator) { g.blocks = blocks }
}

// WithClock sets the time source used for instance ids.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator draws daily plans. It is safe for concurrent use.
type Generator struct {
	catalog      Catalog
	blocks       []Block
	ageThreshold int
	now          func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	entropy io.Reader
}

// NewGenerator returns a Generator over the default catalog unless
// overridden by opts. The catalog is validated up front.
func NewGenerator(opts ...Option) (*Generator, error) {
	g := &Generator{
		catalog:      DefaultCatalog(),
		blocks:       DefaultBlocks,
		ageThreshold: DefaultAgeThreshold,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g.entropy = ulid.Monotonic(g.rng, 0)

	if err := g.catalog.Validate(g.blocks); err != nil {
		return nil, err
	}
	return g, nil
}

// AgeThreshold returns the age above which harder templates are offered.
func (g *Generator) AgeThreshold() int { return g.ageThreshold }

// Size returns the number of activities in every generated plan.
func (g *Generator) Size() int {
	n := 0
	for _, b := range g.blocks {
		n += b.Count
	}
	return n
}

// Generate builds today's plan for profile. Selection inside each pool is
// uniform without replacement; a pool smaller than its block is padded by
// drawing again from the same pool so the session keeps its full shape.
//
// idx is not consulted when choosing activities yet. Callers that want
// review-driven sessions can combine the plan with idx.Due.
func (g *Generator) Generate(profile LearnerProfile, idx progress.Index) []ActivityInstance {
	harder := profile.Age > g.ageThreshold

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]ActivityInstance, 0, g.Size())
	ms := ulid.Timestamp(g.now())
	for _, b := range g.blocks {
		for _, t := range g.draw(g.catalog.Pool(b.Pool, harder), b.Count) {
			out = append(out, ActivityInstance{
				ID:         ulid.MustNew(ms, g.entropy).String(),
				TemplateID: t.ID,
				Title:      t.Title,
				Type:       t.Type,
				Block:      b.Name,
				Config:     t.Config,
			})
		}
	}
	return out
}

// draw picks n templates from pool. Callers hold g.mu.
func (g *Generator) draw(pool []Template, n int) []Template {
	if len(pool) == 0 {
		return nil
	}
	picked := make([]Template, 0, n)
	for _, i := range g.rng.Perm(len(pool)) {
		if len(picked) == n {
			break
		}
		picked = append(picked, pool[i])
	}
	for len(picked) < n {
		picked = append(picked, pool[g.rng.Intn(len(pool))])
	}
	return picked
}

// Format renders a plan as numbered lines for logs and the CLI.
func Format(activities []ActivityInstance) string {
	s := ""
	for i, a := range activities {
		s += fmt.Sprintf("%2d. [%s] %s (%s): %s\n", i+1, a.Block, a.Title, a.TemplateID, Describe(a.Config))
	}
	return s
}
