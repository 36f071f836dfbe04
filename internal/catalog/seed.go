package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultSeed is the catalog shipped with the binary.
//
//go:embed seed/catalog.yaml
var DefaultSeed []byte

// SeedFile is the YAML layout accepted by Seed. Prices are major units.
type SeedFile struct {
	Services []ServiceInput `yaml:"services"`
	Addons   []AddonInput   `yaml:"addons"`
	Bundles  []BundleInput  `yaml:"bundles"`
}

// SeedOptions controls how existing keys are handled.
type SeedOptions struct {
	Update bool
}

// SeedResult counts what a seed run did.
type SeedResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ParseSeed decodes and validates a seed file. Keys must be unique within
// each collection.
func (s *Service) ParseSeed(data []byte) (SeedFile, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return SeedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	check := func(kind string, keys []string) error {
		seen := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				return fmt.Errorf("seed: duplicate %s key %q", kind, k)
			}
			seen[k] = struct{}{}
		}
		return nil
	}
	var keys []string
	for _, in := range file.Services {
		if err := s.check(in); err != nil {
			return SeedFile{}, fmt.Errorf("seed service %q: %w", in.Key, err)
		}
		keys = append(keys, in.Key)
	}
	if err := check("service", keys); err != nil {
		return SeedFile{}, err
	}
	keys = keys[:0]
	for _, in := range file.Addons {
		if err := s.check(in); err != nil {
			return SeedFile{}, fmt.Errorf("seed addon %q: %w", in.Key, err)
		}
		keys = append(keys, in.Key)
	}
	if err := check("addon", keys); err != nil {
		return SeedFile{}, err
	}
	keys = keys[:0]
	for _, in := range file.Bundles {
		if err := s.check(in); err != nil {
			return SeedFile{}, fmt.Errorf("seed bundle %q: %w", in.Key, err)
		}
		keys = append(keys, in.Key)
	}
	if err := check("bundle", keys); err != nil {
		return SeedFile{}, err
	}
	return file, nil
}

// Seed loads a YAML catalog. Existing keys are skipped unless opts.Update is set.
func (s *Service) Seed(ctx context.Context, data []byte, opts SeedOptions) (SeedResult, error) {
	file, err := s.ParseSeed(data)
	if err != nil {
		return SeedResult{}, err
	}
	var res SeedResult
	apply := func(create, update func() error) error {
		err := create()
		switch {
		case err == nil:
			res.Created++
			return nil
		case !errors.Is(err, ErrKeyExists):
			return err
		case !opts.Update:
			res.Skipped++
			return nil
		}
		if err := update(); err != nil {
			return err
		}
		res.Updated++
		return nil
	}

	for i, in := range file.Services {
		m := in.model()
		if m.SortOrder == 0 {
			m.SortOrder = i + 1
		}
		err := apply(
			func() error { _, err := s.store.CreateService(ctx, m); return err },
			func() error { _, err := s.store.UpdateService(ctx, m); return err },
		)
		if err != nil {
			return res, fmt.Errorf("seed service %q: %w", m.Key, err)
		}
	}
	for _, in := range file.Addons {
		m := in.model()
		err := apply(
			func() error { _, err := s.store.CreateAddon(ctx, m); return err },
			func() error { _, err := s.store.UpdateAddon(ctx, m); return err },
		)
		if err != nil {
			return res, fmt.Errorf("seed addon %q: %w", m.Key, err)
		}
	}
	for _, in := range file.Bundles {
		m := in.model()
		err := apply(
			func() error { _, err := s.store.CreateBundle(ctx, m); return err },
			func() error { _, err := s.store.UpdateBundle(ctx, m); return err },
		)
		if err != nil {
			return res, fmt.Errorf("seed bundle %q: %w", m.Key, err)
		}
	}
	s.Invalidate(ctx)
	return res, nil
}
