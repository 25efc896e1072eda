package catalog

import (
	"strings"
	"testing"
)

const sampleJSON = `{
	"sundowning": {
		"wants-to-go-home": {"videoUrl": "https://x/v.mp4"},
		"refuses-to-sit-down-or-sleep": {"videoUrl": "https://x/w.mp4", "prompt2": "Lower the lights."}
	},
	"anger-or-aggression": {
		"cursing-or-yelling": {"videoUrl": "https://x/y.mp4"}
	}
}`

func mustParse(t *testing.T, data string) *Catalog {
	t.Helper()
	c, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return c
}

func TestParse_PreservesOrder(t *testing.T) {
	c := mustParse(t, sampleJSON)

	behaviors := c.Behaviors()
	if len(behaviors) != 2 {
		t.Fatalf("expected 2 behaviors, got %d", len(behaviors))
	}
	if behaviors[0].Slug != "sundowning" || behaviors[1].Slug != "anger-or-aggression" {
		t.Errorf("behaviors out of stored order: %q, %q", behaviors[0].Slug, behaviors[1].Slug)
	}

	sits := c.LookupSituations("sundowning")
	if len(sits) != 2 {
		t.Fatalf("expected 2 situations, got %d", len(sits))
	}
	if sits[0].Slug != "wants-to-go-home" || sits[1].Slug != "refuses-to-sit-down-or-sleep" {
		t.Errorf("situations out of stored order: %q, %q", sits[0].Slug, sits[1].Slug)
	}
}

func TestLookupVideo(t *testing.T) {
	c := mustParse(t, sampleJSON)

	entry, ok := c.LookupVideo("sundowning", "wants-to-go-home")
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.VideoURL != "https://x/v.mp4" {
		t.Errorf("wrong videoUrl: %q", entry.VideoURL)
	}
	if entry.Prompt != "" {
		t.Errorf("expected absent prompt, got %q", entry.Prompt)
	}

	entry, ok = c.LookupVideo("sundowning", "refuses-to-sit-down-or-sleep")
	if !ok || entry.Prompt != "Lower the lights." {
		t.Errorf("expected prompt to round-trip, got ok=%v prompt=%q", ok, entry.Prompt)
	}
}

func TestLookupVideo_UnknownKeys(t *testing.T) {
	c := mustParse(t, sampleJSON)

	if _, ok := c.LookupVideo("nope", "wants-to-go-home"); ok {
		t.Error("unknown behavior should be absent")
	}
	if _, ok := c.LookupVideo("sundowning", "nope"); ok {
		t.Error("unknown situation should be absent")
	}
	if sits := c.LookupSituations("nope"); len(sits) != 0 {
		t.Errorf("unknown behavior should yield empty situations, got %d", len(sits))
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"missing videoUrl", `{"a": {"b": {"prompt2": "x"}}}`, "no videoUrl"},
		{"bad behavior slug", `{"Not A Slug": {"b": {"videoUrl": "u"}}}`, "not a valid slug"},
		{"bad situation slug", `{"a": {"Not A Slug": {"videoUrl": "u"}}}`, "not a valid slug"},
		{"not json", `[]`, "expected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_BundledData(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if c.NumBehaviors() == 0 {
		t.Fatal("bundled catalog has no behaviors")
	}
	for _, b := range c.Behaviors() {
		if len(b.Situations) == 0 {
			t.Errorf("behavior %q has no situations", b.Slug)
		}
		for _, s := range b.Situations {
			if s.Video.VideoURL == "" {
				t.Errorf("entry %q/%q has empty videoUrl", b.Slug, s.Slug)
			}
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Sundowning", "sundowning"},
		{"I Want to Go Home!", "i-want-to-go-home"},
		{"Anger or Aggression", "anger-or-aggression"},
		{"Wants to go to mom's house (who passed away)", "wants-to-go-to-moms-house-who-passed-away"},
		{"  padded   title  ", "padded-title"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTitle(t *testing.T) {
	if got := Title("wants-to-go-home"); got != "Wants To Go Home" {
		t.Errorf("Title = %q", got)
	}
}
