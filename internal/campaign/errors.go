package campaign

import (
	"errors"
	"strings"
)

var ErrInvalidStatus = errors.New("invalid status")

// ValidationErrors is a list of field-level messages such as "name can't be blank"
type ValidationErrors []string

// Add records a message for a field
func (v *ValidationErrors) Add(field, msg string) {
	*v = append(*v, field+" "+msg)
}

func (v ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(v, ", ")
}

// OrNil returns nil when there are no messages so callers can return it as error
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// BrandSet is the brand allow-list
type BrandSet map[string]struct{}

// NewBrandSet builds an allow-list. With no names it falls back to the built-in brands.
func NewBrandSet(names ...string) BrandSet {
	if len(names) == 0 {
		names = []string{"everclear", "phrendly"}
	}
	s := make(BrandSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s BrandSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}
