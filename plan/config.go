package plan

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActivityType names a game family. Every type has exactly one Config variant.
type ActivityType string

const (
	TypeBreathing      ActivityType = "breathing"
	TypeFlashMemory    ActivityType = "flash_memory"
	TypeSequenceRecall ActivityType = "sequence_recall"
	TypeAbacus         ActivityType = "abacus"
	TypeMentalMath     ActivityType = "mental_math"
	TypeSpeedSort      ActivityType = "speed_sort"
	TypeFocus          ActivityType = "focus"
	TypeCreative       ActivityType = "creative"
)

// ErrConfigMismatch is returned when a Config does not belong to the
// activity type it is attached to.
var ErrConfigMismatch = errors.New("plan: config does not match activity type")

// Config is the per-activity game configuration. The set of implementations
// is closed: only the variants in this file satisfy it.
type Config interface {
	Type() ActivityType
	Validate() error
	sealed()
}

// BreathingConfig drives a paced-breathing relaxation activity.
type BreathingConfig struct {
	Cycles        int `json:"cycles"`
	InhaleSeconds int `json:"inhale_seconds"`
	HoldSeconds   int `json:"hold_seconds,omitempty"`
	ExhaleSeconds int `json:"exhale_seconds"`
}

// FlashMemoryConfig shows a set of pictures briefly, then asks for them back.
type FlashMemoryConfig struct {
	Items          int    `json:"items"`
	ExposureMillis int    `json:"exposure_millis"`
	GridSize       int    `json:"grid_size"`
	Theme          string `json:"theme"`
}

// SequenceRecallConfig presents a sequence to be reproduced in order.
type SequenceRecallConfig struct {
	Length  int    `json:"length"`
	Symbols string `json:"symbols"` // digits, colors or shapes
	Reverse bool   `json:"reverse,omitempty"`
}

// AbacusConfig configures a soroban exercise.
type AbacusConfig struct {
	Rods      int    `json:"rods"`
	MaxValue  int    `json:"max_value"`
	Operation string `json:"operation"` // show, add or subtract
}

// MentalMathConfig configures timed arithmetic.
type MentalMathConfig struct {
	Operands   int      `json:"operands"`
	MaxOperand int      `json:"max_operand"`
	Operators  []string `json:"operators"`
}

// SpeedSortConfig configures a timed categorisation game.
type SpeedSortConfig struct {
	Categories       []string `json:"categories"`
	Items            int      `json:"items"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

// FocusConfig configures a selective-attention game.
type FocusConfig struct {
	Targets         int `json:"targets"`
	Distractors     int `json:"distractors"`
	DurationSeconds int `json:"duration_seconds"`
}

// CreativeConfig configures an open-ended cool-down activity.
type CreativeConfig struct {
	Medium string `json:"medium"` // draw, story or music
	Prompt string `json:"prompt"`
}

func (BreathingConfig) Type() ActivityType      { return TypeBreathing }
func (FlashMemoryConfig) Type() ActivityType    { return TypeFlashMemory }
func (SequenceRecallConfig) Type() ActivityType { return TypeSequenceRecall }
func (AbacusConfig) Type() ActivityType         { return TypeAbacus }
func (MentalMathConfig) Type() ActivityType     { return TypeMentalMath }
func (SpeedSortConfig) Type() ActivityType      { return TypeSpeedSort }
func (FocusConfig) Type() ActivityType          { return TypeFocus }
func (CreativeConfig) Type() ActivityType       { return TypeCreative }

func (BreathingConfig) sealed()      {}
func (FlashMemoryConfig) sealed()    {}
func (SequenceRecallConfig) sealed() {}
func (AbacusConfig) sealed()         {}
func (MentalMathConfig) sealed()     {}
func (SpeedSortConfig) sealed()      {}
func (FocusConfig) sealed()          {}
func (CreativeConfig) sealed()       {}

func (c BreathingConfig) Validate() error {
	if c.Cycles < 1 || c.InhaleSeconds < 1 || c.ExhaleSeconds < 1 || c.HoldSeconds < 0 {
		return fmt.Errorf("plan: breathing: cycles and phase lengths must be positive")
	}
	return nil
}

func (c FlashMemoryConfig) Validate() error {
	if c.Items < 1 || c.ExposureMillis < 100 {
		return fmt.Errorf("plan: flash memory: need items and an exposure of at least 100ms")
	}
	if c.GridSize*c.GridSize < c.Items {
		return fmt.Errorf("plan: flash memory: %d items do not fit a %dx%d grid", c.Items, c.GridSize, c.GridSize)
	}
	return nil
}

func (c SequenceRecallConfig) Validate() error {
	if c.Length < 2 {
		return fmt.Errorf("plan: sequence recall: length must be at least 2")
	}
	switch c.Symbols {
	case "digits", "colors", "shapes":
		return nil
	}
	return fmt.Errorf("plan: sequence recall: unknown symbol set %q", c.Symbols)
}

func (c AbacusConfig) Validate() error {
	if c.Rods < 1 || c.MaxValue < 1 {
		return fmt.Errorf("plan: abacus: rods and max value must be positive")
	}
	switch c.Operation {
	case "show", "add", "subtract":
		return nil
	}
	return fmt.Errorf("plan: abacus: unknown operation %q", c.Operation)
}

func (c MentalMathConfig) Validate() error {
	if c.Operands < 2 || c.MaxOperand < 1 || len(c.Operators) == 0 {
		return fmt.Errorf("plan: mental math: need two operands, a max operand and operators")
	}
	for _, op := range c.Operators {
		if op != "+" && op != "-" && op != "x" {
			return fmt.Errorf("plan: mental math: unsupported operator %q", op)
		}
	}
	return nil
}

func (c SpeedSortConfig) Validate() error {
	if len(c.Categories) < 2 || c.Items < 1 || c.TimeLimitSeconds < 1 {
		return fmt.Errorf("plan: speed sort: need two categories, items and a time limit")
	}
	return nil
}

func (c FocusConfig) Validate() error {
	if c.Targets < 1 || c.Distractors < 0 || c.DurationSeconds < 1 {
		return fmt.Errorf("plan: focus: need targets and a duration")
	}
	return nil
}

func (c CreativeConfig) Validate() error {
	switch c.Medium {
	case "draw", "story", "music":
	default:
		return fmt.Errorf("plan: creative: unknown medium %q", c.Medium)
	}
	if c.Prompt == "" {
		return fmt.Errorf("plan: creative: prompt required")
	}
	return nil
}

// Describe renders a one-line, child-facing summary of a config.
func Describe(c Config) string {
	switch c := c.(type) {
	case BreathingConfig:
		return fmt.Sprintf("%d slow breaths", c.Cycles)
	case FlashMemoryConfig:
		return fmt.Sprintf("remember %d %s pictures", c.Items, c.Theme)
	case SequenceRecallConfig:
		if c.Reverse {
			return fmt.Sprintf("repeat %d %s backwards", c.Length, c.Symbols)
		}
		return fmt.Sprintf("repeat %d %s", c.Length, c.Symbols)
	case AbacusConfig:
		return fmt.Sprintf("abacus %s up to %d", c.Operation, c.MaxValue)
	case MentalMathConfig:
		return fmt.Sprintf("quick sums with numbers up to %d", c.MaxOperand)
	case SpeedSortConfig:
		return fmt.Sprintf("sort %d things in %d seconds", c.Items, c.TimeLimitSeconds)
	case FocusConfig:
		return fmt.Sprintf("find %d targets", c.Targets)
	case CreativeConfig:
		return c.Prompt
	case nil:
		return ""
	default:
		panic(fmt.Sprintf("plan: unhandled config %T", c))
	}
}

// DecodeConfig decodes raw JSON into the Config variant for t.
func DecodeConfig(t ActivityType, raw json.RawMessage) (Config, error) {
	var (
		c   Config
		err error
	)
	switch t {
	case TypeBreathing:
		c, err = decodeAs[BreathingConfig](raw)
	case TypeFlashMemory:
		c, err = decodeAs[FlashMemoryConfig](raw)
	case TypeSequenceRecall:
		c, err = decodeAs[SequenceRecallConfig](raw)
	case TypeAbacus:
		c, err = decodeAs[AbacusConfig](raw)
	case TypeMentalMath:
		c, err = decodeAs[MentalMathConfig](raw)
	case TypeSpeedSort:
		c, err = decodeAs[SpeedSortConfig](raw)
	case TypeFocus:
		c, err = decodeAs[FocusConfig](raw)
	case TypeCreative:
		c, err = decodeAs[CreativeConfig](raw)
	default:
		return nil, fmt.Errorf("plan: unknown activity type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("plan: decode %s config: %w", t, err)
	}
	return c, nil
}

func decodeAs[T Config](raw json.RawMessage) (Config, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
