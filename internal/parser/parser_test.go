package parser

import (
	"errors"
	"strings"
	"testing"

	"go-modelcart/internal/models"
)

func testDestinations() map[models.Category]string {
	dests := make(map[models.Category]string)
	for _, cat := range models.Categories {
		dests[cat] = "/models/" + string(cat)
	}
	return dests
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := New(DefaultTagVocabulary(), testDestinations(), []string{"civitai.com", "huggingface.co"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return p
}

func TestParseCategories(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name string
		text string
		want []models.DownloadJob
	}{
		{
			name: "Tag carries forward across lines",
			text: "$ckpt\nhttp://x.test/m1.safetensors\nhttp://x.test/m2.safetensors\n$vae\nhttp://x.test/v1.safetensors",
			want: []models.DownloadJob{
				{URL: "http://x.test/m1.safetensors", Category: models.CategoryModel},
				{URL: "http://x.test/m2.safetensors", Category: models.CategoryModel},
				{URL: "http://x.test/v1.safetensors", Category: models.CategoryVae},
			},
		},
		{
			name: "Tag and URL on the same line",
			text: "$lora http://x.test/style.safetensors",
			want: []models.DownloadJob{
				{URL: "http://x.test/style.safetensors", Category: models.CategoryLora},
			},
		},
		{
			name: "Long-form tags",
			text: "#controlnet\nhttp://x.test/canny.pth",
			want: []models.DownloadJob{
				{URL: "http://x.test/canny.pth", Category: models.CategoryControlnet},
			},
		},
		{
			name: "Tags are case-insensitive",
			text: "$CKPT\nhttp://x.test/m.safetensors",
			want: []models.DownloadJob{
				{URL: "http://x.test/m.safetensors", Category: models.CategoryModel},
			},
		},
		{
			name: "Untagged URL defaults to unknown",
			text: "http://x.test/mystery.bin",
			want: []models.DownloadJob{
				{URL: "http://x.test/mystery.bin", Category: models.CategoryUnknown},
			},
		},
		{
			name: "Comments and blank lines are skipped without state change",
			text: "$vae\n// a comment\n\nhttp://x.test/v.pt",
			want: []models.DownloadJob{
				{URL: "http://x.test/v.pt", Category: models.CategoryVae},
			},
		},
		{
			name: "Tag-only line emits no job",
			text: "$emb",
			want: nil,
		},
		{
			name: "Empty input",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped := p.Parse(tt.text)
			if len(dropped) != 0 {
				t.Errorf("Parse dropped %v from well-formed input", dropped)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse produced %d jobs, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].URL != tt.want[i].URL {
					t.Errorf("job %d URL = %q, want %q", i, got[i].URL, tt.want[i].URL)
				}
				if got[i].Category != tt.want[i].Category {
					t.Errorf("job %d category = %q, want %q", i, got[i].Category, tt.want[i].Category)
				}
				wantDest := "/models/" + string(tt.want[i].Category)
				if got[i].DestinationDir != wantDest {
					t.Errorf("job %d destination = %q, want %q", i, got[i].DestinationDir, wantDest)
				}
			}
		})
	}
}

func TestParseDedupFirstOccurrenceWins(t *testing.T) {
	p := newTestParser(t)

	text := "$lora\nhttp://x.test/a.safetensors\n$vae\nhttp://x.test/a.safetensors"
	jobs, _ := p.Parse(text)

	if len(jobs) != 1 {
		t.Fatalf("Parse produced %d jobs, want 1", len(jobs))
	}
	if jobs[0].Category != models.CategoryLora {
		t.Errorf("duplicate kept category %q, want first occurrence %q", jobs[0].Category, models.CategoryLora)
	}
}

func TestParseBracketFilename(t *testing.T) {
	p := newTestParser(t)

	jobs, _ := p.Parse("$ckpt\nhttp://x.test/weird-path [my_model.safetensors]")
	if len(jobs) != 1 {
		t.Fatalf("Parse produced %d jobs, want 1", len(jobs))
	}
	if jobs[0].ExplicitFilename != "my_model.safetensors" {
		t.Errorf("ExplicitFilename = %q, want %q", jobs[0].ExplicitFilename, "my_model.safetensors")
	}
	if jobs[0].URL != "http://x.test/weird-path" {
		t.Errorf("URL = %q, want bracket text stripped", jobs[0].URL)
	}
}

func TestParseDropsMalformedURLs(t *testing.T) {
	p := newTestParser(t)

	text := "$ckpt\nnot a url at all\nhttp://x.test/good.safetensors\njust/some/path"
	jobs, dropped := p.Parse(text)

	if len(jobs) != 1 {
		t.Fatalf("Parse produced %d jobs, want 1: %+v", len(jobs), jobs)
	}
	if jobs[0].URL != "http://x.test/good.safetensors" {
		t.Errorf("surviving URL = %q", jobs[0].URL)
	}

	if len(dropped) != 2 {
		t.Fatalf("Parse dropped %v, want the 2 malformed candidates", dropped)
	}
	if dropped[0] != "not a url at all" || dropped[1] != "just/some/path" {
		t.Errorf("dropped = %v, want the malformed candidates in input order", dropped)
	}

	// Dropped candidates surface as validation errors, one per candidate.
	report := p.Validate(jobs, dropped)
	if len(report.Errors) != 2 {
		t.Fatalf("report.Errors = %v, want one error per dropped candidate", report.Errors)
	}
	for i, e := range report.Errors {
		if !strings.Contains(e, dropped[i]) {
			t.Errorf("error %d = %q, want it to name %q", i, e, dropped[i])
		}
	}
}

func TestLongestTagWins(t *testing.T) {
	dests := testDestinations()
	vocab := map[string]models.Category{
		"$e":   models.CategoryEmbedding,
		"$ext": models.CategoryExtension,
	}
	p, err := New(vocab, dests, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	jobs, _ := p.Parse("$ext http://x.test/thing.zip")
	if len(jobs) != 1 {
		t.Fatalf("Parse produced %d jobs, want 1", len(jobs))
	}
	if jobs[0].Category != models.CategoryExtension {
		t.Errorf("category = %q, want the longer tag's category %q", jobs[0].Category, models.CategoryExtension)
	}
}

func TestNewRejectsBrokenMapping(t *testing.T) {
	dests := testDestinations()
	delete(dests, models.CategoryVae)

	_, err := New(DefaultTagVocabulary(), dests, nil)
	if err == nil {
		t.Fatal("New accepted a vocabulary category with no destination")
	}
	var mapErr *MappingError
	if !errors.As(err, &mapErr) {
		t.Errorf("error type = %T, want *MappingError", err)
	}

	// Missing unknown destination is also fatal: untagged URLs need a home.
	dests = testDestinations()
	delete(dests, models.CategoryUnknown)
	if _, err := New(DefaultTagVocabulary(), dests, nil); err == nil {
		t.Error("New accepted a destination map without the unknown category")
	}

	if _, err := New(nil, testDestinations(), nil); !errors.Is(err, ErrEmptyVocabulary) {
		t.Errorf("New(nil vocabulary) error = %v, want ErrEmptyVocabulary", err)
	}
}

func TestValidate(t *testing.T) {
	p := newTestParser(t)

	jobs, dropped := p.Parse(strings.Join([]string{
		"$ckpt",
		"https://civitai.com/api/download/models/1234",
		"https://example.org/a.safetensors",
		"$lora",
		"https://huggingface.co/repo/resolve/main/x.safetensors",
	}, "\n"))

	report := p.Validate(jobs, dropped)

	if report.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", report.TotalCount)
	}
	if report.PerCategory[models.CategoryModel] != 2 {
		t.Errorf("model count = %d, want 2", report.PerCategory[models.CategoryModel])
	}
	if report.PerCategory[models.CategoryLora] != 1 {
		t.Errorf("lora count = %d, want 1", report.PerCategory[models.CategoryLora])
	}
	if len(report.Errors) != 0 {
		t.Errorf("unexpected errors: %v", report.Errors)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "example.org") {
		t.Errorf("warnings = %v, want one unsupported-host warning for example.org", report.Warnings)
	}
}

func TestValidateLongFilenameWarning(t *testing.T) {
	p := newTestParser(t)

	jobs := []models.DownloadJob{{
		URL:              "https://civitai.com/file",
		Category:         models.CategoryModel,
		ExplicitFilename: strings.Repeat("x", 300) + ".safetensors",
	}}

	report := p.Validate(jobs, nil)
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "long filename") {
		t.Errorf("warnings = %v, want a long-filename warning", report.Warnings)
	}
}
