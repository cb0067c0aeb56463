package resource

import (
	"errors"
	"fmt"
	"strings"

	"capd/internal/domain"
)

const schemeSeparator = "://"

// ParseReference turns a locator string into a reference of the given kind.
// Unscoped locators resolve against the local disk.
func ParseReference(kind domain.ResourceKind, raw string) (domain.ResourceReference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.ResourceReference{}, fmt.Errorf("%s reference is empty", kind)
	}

	scheme, path, scoped := strings.Cut(trimmed, schemeSeparator)
	if !scoped {
		return domain.ResourceReference{Kind: kind, Scheme: domain.SchemeFile, Path: trimmed}, nil
	}
	if path == "" {
		return domain.ResourceReference{}, fmt.Errorf("%s reference %q has no path", kind, raw)
	}

	switch domain.ResourceScheme(strings.ToLower(scheme)) {
	case domain.SchemeFile:
		return domain.ResourceReference{Kind: kind, Scheme: domain.SchemeFile, Path: path}, nil
	case domain.SchemeDatastore:
		return domain.ResourceReference{Kind: kind, Scheme: domain.SchemeDatastore, Path: path}, nil
	default:
		return domain.ResourceReference{}, fmt.Errorf("%s reference %q: %w", kind, raw, domain.ErrUnsupportedScheme)
	}
}

// ReferenceList collects the references required at startup. Optional kinds
// with an empty locator are skipped.
type ReferenceList struct {
	refs []domain.ResourceReference
	errs []error
}

func NewReferenceList() *ReferenceList {
	return &ReferenceList{}
}

func (l *ReferenceList) Add(kind domain.ResourceKind, raw string, required bool) *ReferenceList {
	if strings.TrimSpace(raw) == "" {
		if required {
			l.errs = append(l.errs, fmt.Errorf("%s reference is required", kind))
		}
		return l
	}
	ref, err := ParseReference(kind, raw)
	if err != nil {
		l.errs = append(l.errs, err)
		return l
	}
	for _, existing := range l.refs {
		if existing.Kind == kind {
			l.errs = append(l.errs, fmt.Errorf("%s reference declared twice", kind))
			return l
		}
	}
	l.refs = append(l.refs, ref)
	return l
}

func (l *ReferenceList) Build() ([]domain.ResourceReference, error) {
	if len(l.errs) > 0 {
		return nil, errors.Join(l.errs...)
	}
	out := make([]domain.ResourceReference, len(l.refs))
	copy(out, l.refs)
	return out, nil
}
