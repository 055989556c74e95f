package parser

import (
	"errors"
	"fmt"

	"go-modelcart/internal/models"
)

// ErrEmptyVocabulary is returned by New when no tags are configured.
var ErrEmptyVocabulary = errors.New("tag vocabulary is empty")

// MappingError reports a tag or category with no usable destination
// directory. It is a configuration problem, fatal at startup, never a
// per-input failure.
type MappingError struct {
	Tag      string
	Category models.Category
}

func (e *MappingError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("tag %q maps to category %q which has no destination directory", e.Tag, e.Category)
	}
	return fmt.Sprintf("category %q has no destination directory", e.Category)
}
