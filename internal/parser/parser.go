// Package parser converts free-form pasted text into download jobs.
//
// Input is line oriented. A line may set the active category with a tag
// (long form "#lora" or short form "$lora"), carry a URL, or both. The
// active category sticks until the next tag. URLs may force a filename
// with bracket syntax: http://host/path [name.safetensors].
package parser

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"go-modelcart/internal/models"

	log "github.com/sirupsen/logrus"
)

const commentMarker = "//"

// bracketRe captures the first [name] segment in a URL candidate.
var bracketRe = regexp.MustCompile(`\[(.*?)\]`)

// DefaultTagVocabulary maps user-facing tags (long and short form) to
// categories. Both forms of a pair map to the same category.
func DefaultTagVocabulary() map[string]models.Category {
	return map[string]models.Category{
		"#model": models.CategoryModel, "$ckpt": models.CategoryModel,
		"#vae": models.CategoryVae, "$vae": models.CategoryVae,
		"#lora": models.CategoryLora, "$lora": models.CategoryLora,
		"#embedding": models.CategoryEmbedding, "$emb": models.CategoryEmbedding,
		"#controlnet": models.CategoryControlnet, "$cnet": models.CategoryControlnet,
		"#upscale": models.CategoryUpscale, "$ups": models.CategoryUpscale,
		"#extension": models.CategoryExtension, "$ext": models.CategoryExtension,
	}
}

type tagBinding struct {
	tag      string // lowercase
	category models.Category
}

// Parser is a deterministic, single-pass scanner for download request text.
// Construct one with New; the zero value is not usable.
type Parser struct {
	tags           []tagBinding // sorted longest tag first
	destinations   map[models.Category]string
	supportedHosts []string
}

// New builds a Parser from a tag vocabulary and a category destination map.
// Every category referenced by the vocabulary, plus CategoryUnknown for
// untagged URLs, must have a destination; a missing one is a configuration
// error surfaced here rather than during parsing.
func New(vocabulary map[string]models.Category, destinations map[models.Category]string, supportedHosts []string) (*Parser, error) {
	if len(vocabulary) == 0 {
		return nil, ErrEmptyVocabulary
	}

	tags := make([]tagBinding, 0, len(vocabulary))
	for tag, cat := range vocabulary {
		if dest, ok := destinations[cat]; !ok || dest == "" {
			return nil, &MappingError{Tag: tag, Category: cat}
		}
		tags = append(tags, tagBinding{tag: strings.ToLower(tag), category: cat})
	}
	if dest, ok := destinations[models.CategoryUnknown]; !ok || dest == "" {
		return nil, &MappingError{Category: models.CategoryUnknown}
	}

	// Longest tag first so "$ext" can never shadow a longer tag sharing
	// its prefix. Ties break lexicographically to keep matching stable.
	sort.Slice(tags, func(i, j int) bool {
		if len(tags[i].tag) != len(tags[j].tag) {
			return len(tags[i].tag) > len(tags[j].tag)
		}
		return tags[i].tag < tags[j].tag
	})

	return &Parser{
		tags:           tags,
		destinations:   destinations,
		supportedHosts: supportedHosts,
	}, nil
}

// Parse scans text into an ordered, URL-deduplicated job list. Malformed
// URL candidates never fail the parse; they are dropped with a warning and
// returned so Validate can report them.
func (p *Parser) Parse(text string) ([]models.DownloadJob, []string) {
	var jobs []models.DownloadJob
	var dropped []string
	seenURLs := make(map[string]struct{})
	currentCategory := models.CategoryUnknown

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, commentMarker) {
			continue
		}

		if tag, ok := p.matchTag(line); ok {
			currentCategory = tag.category
			line = strings.TrimSpace(line[len(tag.tag):])
		}
		if line == "" {
			continue
		}

		candidate := line
		explicitName := ""
		if m := bracketRe.FindStringSubmatch(candidate); m != nil {
			explicitName = strings.TrimSpace(m[1])
			candidate = strings.TrimSpace(strings.Replace(candidate, m[0], "", 1))
		}

		if !isValidURL(candidate) {
			log.Warnf("Skipping malformed URL candidate: %q", candidate)
			dropped = append(dropped, candidate)
			continue
		}

		if _, seen := seenURLs[candidate]; seen {
			log.Debugf("Skipping duplicate URL: %s", candidate)
			continue
		}
		seenURLs[candidate] = struct{}{}

		jobs = append(jobs, models.DownloadJob{
			URL:              candidate,
			Category:         currentCategory,
			ExplicitFilename: explicitName,
			DestinationDir:   p.destinations[currentCategory],
		})
	}

	return jobs, dropped
}

// matchTag reports the longest vocabulary tag prefixing the line, if any.
// Matching is case-insensitive.
func (p *Parser) matchTag(line string) (tagBinding, bool) {
	lower := strings.ToLower(line)
	for _, t := range p.tags {
		if strings.HasPrefix(lower, t.tag) {
			return t, true
		}
	}
	return tagBinding{}, false
}

// Validate produces an advisory pre-flight report for a job list. dropped
// carries the malformed candidates Parse discarded; each becomes an error
// in the report. Warnings (unsupported host, very long filename) never
// block dispatch; errors are listed for the caller to act on but are not
// enforced here.
func (p *Parser) Validate(jobs []models.DownloadJob, dropped []string) models.ValidationReport {
	report := models.ValidationReport{
		TotalCount:  len(jobs),
		PerCategory: make(map[models.Category]int),
	}

	for _, candidate := range dropped {
		report.Errors = append(report.Errors, "malformed URL dropped: "+candidate)
	}

	for _, job := range jobs {
		report.PerCategory[job.Category]++

		u, err := url.Parse(job.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			report.Errors = append(report.Errors, "invalid URL: "+job.URL)
			continue
		}

		if len(p.supportedHosts) > 0 && !p.hostSupported(u.Hostname()) {
			report.Warnings = append(report.Warnings, "unsupported host '"+u.Hostname()+"' for URL: "+job.URL)
		}

		if len(job.ExplicitFilename) > 255 {
			report.Warnings = append(report.Warnings, "very long filename: "+job.ExplicitFilename)
		}
	}

	return report
}

func (p *Parser) hostSupported(host string) bool {
	host = strings.ToLower(host)
	for _, h := range p.supportedHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// isValidURL checks that text parses as an absolute URL with scheme and host.
func isValidURL(text string) bool {
	u, err := url.Parse(text)
	return err == nil && u.Scheme != "" && u.Host != ""
}
