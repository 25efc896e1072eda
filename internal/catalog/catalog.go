// Package catalog holds the static behavior → situation → video lookup
// table the app navigates. The table is bundled into the binary, loaded
// once at startup, and read-only for the rest of the process lifetime.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

//go:embed data/behaviors.json
var behaviorsJSON []byte

// VideoEntry is one piece of guidance content: a remote video asset plus
// an optional supplementary caregiver prompt.
type VideoEntry struct {
	VideoURL string `json:"videoUrl"`
	Prompt   string `json:"prompt2,omitempty"`
}

// Situation pairs a situation slug with its video entry.
type Situation struct {
	Slug  string     `json:"slug"`
	Video VideoEntry `json:"video"`
}

// Behavior is one challenging behavior and its situations, in the order
// they appear in the bundled data file.
type Behavior struct {
	Slug       string      `json:"slug"`
	Situations []Situation `json:"situations"`

	sitIndex map[string]int
}

// Catalog is the two-level lookup table keyed by behavior slug then
// situation slug. Both levels preserve the data file's stored order.
type Catalog struct {
	behaviors []Behavior
	index     map[string]int
}

// Load parses the bundled behaviors data file.
func Load() (*Catalog, error) {
	return Parse(behaviorsJSON)
}

// Parse builds a Catalog from JSON shaped as
// {behaviorSlug: {situationSlug: {videoUrl, prompt2?}}}.
// Key order in the file is preserved; duplicate or malformed slugs and
// entries without a videoUrl are rejected.
func Parse(data []byte) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := &Catalog{index: make(map[string]int)}
	for dec.More() {
		slug, err := nextKey(dec)
		if err != nil {
			return nil, fmt.Errorf("parsing catalog: %w", err)
		}
		if slug != Slugify(slug) {
			return nil, fmt.Errorf("behavior key %q is not a valid slug", slug)
		}
		if _, dup := c.index[slug]; dup {
			return nil, fmt.Errorf("duplicate behavior slug %q", slug)
		}

		b, err := parseBehavior(dec, slug)
		if err != nil {
			return nil, err
		}
		c.index[slug] = len(c.behaviors)
		c.behaviors = append(c.behaviors, b)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	return c, nil
}

func parseBehavior(dec *json.Decoder, behaviorSlug string) (Behavior, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return Behavior{}, fmt.Errorf("parsing behavior %q: %w", behaviorSlug, err)
	}

	b := Behavior{Slug: behaviorSlug, sitIndex: make(map[string]int)}
	for dec.More() {
		slug, err := nextKey(dec)
		if err != nil {
			return Behavior{}, fmt.Errorf("parsing behavior %q: %w", behaviorSlug, err)
		}
		if slug != Slugify(slug) {
			return Behavior{}, fmt.Errorf("situation key %q under %q is not a valid slug", slug, behaviorSlug)
		}
		if _, dup := b.sitIndex[slug]; dup {
			return Behavior{}, fmt.Errorf("duplicate situation slug %q under %q", slug, behaviorSlug)
		}

		var entry VideoEntry
		if err := dec.Decode(&entry); err != nil {
			return Behavior{}, fmt.Errorf("parsing entry %q/%q: %w", behaviorSlug, slug, err)
		}
		if entry.VideoURL == "" {
			return Behavior{}, fmt.Errorf("entry %q/%q has no videoUrl", behaviorSlug, slug)
		}

		b.sitIndex[slug] = len(b.Situations)
		b.Situations = append(b.Situations, Situation{Slug: slug, Video: entry})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return Behavior{}, fmt.Errorf("parsing behavior %q: %w", behaviorSlug, err)
	}

	return b, nil
}

func nextKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// Behaviors returns the behaviors in stored order. The returned slice
// must not be modified.
func (c *Catalog) Behaviors() []Behavior {
	return c.behaviors
}

// LookupSituations returns the situations for a behavior in stored
// order. An unknown behavior yields nil, not an error.
func (c *Catalog) LookupSituations(behaviorSlug string) []Situation {
	i, ok := c.index[behaviorSlug]
	if !ok {
		return nil
	}
	return c.behaviors[i].Situations
}

// LookupVideo returns the video entry for a (behavior, situation) pair.
// The second return is false when either key is unknown.
func (c *Catalog) LookupVideo(behaviorSlug, situationSlug string) (VideoEntry, bool) {
	i, ok := c.index[behaviorSlug]
	if !ok {
		return VideoEntry{}, false
	}
	b := c.behaviors[i]
	j, ok := b.sitIndex[situationSlug]
	if !ok {
		return VideoEntry{}, false
	}
	return b.Situations[j].Video, true
}

// NumBehaviors returns the number of behaviors.
func (c *Catalog) NumBehaviors() int {
	return len(c.behaviors)
}

// NumSituations returns the total number of situations across all
// behaviors.
func (c *Catalog) NumSituations() int {
	n := 0
	for _, b := range c.behaviors {
		n += len(b.Situations)
	}
	return n
}

var nonWord = regexp.MustCompile(`[^\w-]`)
var whitespace = regexp.MustCompile(`\s+`)

// Slugify derives a lookup slug from a display title: lowercase, spaces
// collapsed to hyphens, remaining non-word characters stripped.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = whitespace.ReplaceAllString(s, "-")
	return nonWord.ReplaceAllString(s, "")
}

// Title renders a slug back into display form: hyphens become spaces
// and each word is capitalized.
func Title(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
