// Package cards holds the read-only prompt and answer corpus shared by every room.
package cards

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrEmptyCatalog        = errors.New("card catalog needs at least one prompt and one answer")
	ErrInsufficientAnswers = errors.New("not enough distinct answer cards")
)

// corpus mirrors the document on disk: two named collections of strings.
type corpus struct {
	Prompts []string `mapstructure:"blackCards"`
	Answers []string `mapstructure:"whiteCards"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	prompts []string
	answers []string
}

// Load reads a json, yaml or toml card document from path.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}

	var c corpus
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cards: %w", err)
	}
	return New(c.Prompts, c.Answers)
}

// New builds a catalog. Blank entries are dropped and answers are de-duplicated
// so that distinct samples are distinct texts.
func New(prompts, answers []string) (*Catalog, error) {
	c := &Catalog{
		prompts: clean(prompts, false),
		answers: clean(answers, true),
	}
	if len(c.prompts) == 0 || len(c.answers) == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

func clean(in []string, unique bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if unique {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

func (c *Catalog) PromptCount() int { return len(c.prompts) }
func (c *Catalog) AnswerCount() int { return len(c.answers) }

// SamplePrompt returns a uniformly random prompt.
func (c *Catalog) SamplePrompt() string {
	return c.prompts[rand.IntN(len(c.prompts))]
}

// SampleAnswers draws n answers without replacement from the full pool.
func (c *Catalog) SampleAnswers(n int) ([]string, error) {
	if n < 0 || n > len(c.answers) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrInsufficientAnswers, n, len(c.answers))
	}

	// partial Fisher-Yates over an index table
	idx := make([]int, len(c.answers))
	for i := range idx {
		idx[i] = i
	}
	hand := make([]string, n)
	for i := 0; i < n; i++ {
		j := i + rand.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		hand[i] = c.answers[idx[i]]
	}
	return hand, nil
}
