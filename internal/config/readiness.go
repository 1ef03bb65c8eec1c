package config

import (
	"context"
	"fmt"
	"sort"
)

// Readiness lists configuration keys that are not set.
type Readiness struct {
	MissingRequired []string `json:"missing_required"`
	MissingOptional []string `json:"missing_optional"`
}

// Ready reports whether every required key is set.
func (r Readiness) Ready() bool {
	return len(r.MissingRequired) == 0
}

// CheckReadiness inspects p for RequiredKeys and OptionalKeys.
// Blank values count as missing.
func CheckReadiness(ctx context.Context, p Provider) (Readiness, error) {
	r := Readiness{MissingRequired: []string{}, MissingOptional: []string{}}
	for _, k := range RequiredKeys {
		set, err := isSet(ctx, p, k)
		if err != nil {
			return r, err
		}
		if !set {
			r.MissingRequired = append(r.MissingRequired, k)
		}
	}
	for _, k := range OptionalKeys {
		set, err := isSet(ctx, p, k)
		if err != nil {
			return r, err
		}
		if !set {
			r.MissingOptional = append(r.MissingOptional, k)
		}
	}
	return r, nil
}

func isSet(ctx context.Context, p Provider, key string) (bool, error) {
	v, ok, err := p.Lookup(ctx, key)
	if err != nil {
		return false, fmt.Errorf("readiness %s: %w", key, err)
	}
	return ok && v != "", nil
}

// SeedDefaults writes every entry of Defaults whose key is unset or blank.
// It returns the keys written, sorted.
func SeedDefaults(ctx context.Context, p Provider) ([]string, error) {
	var written []string
	for k, v := range Defaults {
		set, err := isSet(ctx, p, k)
		if err != nil {
			return written, err
		}
		if set {
			continue
		}
		if err := p.Set(ctx, k, v); err != nil {
			return written, fmt.Errorf("seed %s: %w", k, err)
		}
		written = append(written, k)
	}
	sort.Strings(written)
	return written, nil
}
