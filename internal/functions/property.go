package functions

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/pkg/api"
)

type (
	// PropertyStore is the data-access contract for properties and their
	// valuations
	PropertyStore interface {
		GetProperty(ctx context.Context, id string) (*Property, error)
		ListValuations(
			ctx context.Context, propertyID string,
		) ([]*Valuation, error)
	}

	// Property is a taxable parcel
	Property struct {
		ID         string  `yaml:"id"`
		Address    string  `yaml:"address"`
		County     string  `yaml:"county"`
		Owner      string  `yaml:"owner"`
		MillRate   float64 `yaml:"mill_rate"`
		Exemptions float64 `yaml:"exemptions"`
	}

	// Valuation is the assessed value of a property for a tax year
	Valuation struct {
		PropertyID    string  `yaml:"property_id"`
		Year          int     `yaml:"year"`
		AssessedValue float64 `yaml:"assessed_value"`
		MarketValue   float64 `yaml:"market_value"`
	}

	// MemoryPropertyStore is a PropertyStore held in memory
	MemoryPropertyStore struct {
		properties map[string]*Property
		valuations map[string][]*Valuation
		mu         sync.RWMutex
	}

	propertyFixtures struct {
		Properties []*Property  `yaml:"properties"`
		Valuations []*Valuation `yaml:"valuations"`
	}
)

var (
	ErrPropertyNotFound  = errors.New("property not found")
	ErrNoValuations      = errors.New("property has no valuations")
	ErrPropertyIDMissing = errors.New("property_id required")
	ErrLoadFixtures      = errors.New("failed to load property fixtures")
)

var _ PropertyStore = (*MemoryPropertyStore)(nil)

// NewMemoryPropertyStore creates an empty property store
func NewMemoryPropertyStore() *MemoryPropertyStore {
	return &MemoryPropertyStore{
		properties: map[string]*Property{},
		valuations: map[string][]*Valuation{},
	}
}

// LoadPropertyFixtures creates a property store seeded from a YAML file
func LoadPropertyFixtures(path string) (*MemoryPropertyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFixtures, err)
	}

	var fx propertyFixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFixtures, err)
	}

	s := NewMemoryPropertyStore()
	for _, p := range fx.Properties {
		s.AddProperty(p)
	}
	for _, v := range fx.Valuations {
		s.AddValuation(v)
	}
	return s, nil
}

// AddProperty stores or replaces a property
func (s *MemoryPropertyStore) AddProperty(p *Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc := *p
	s.properties[p.ID] = &pc
}

// AddValuation records a valuation for a property
func (s *MemoryPropertyStore) AddValuation(v *Valuation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vc := *v
	s.valuations[v.PropertyID] = append(s.valuations[v.PropertyID], &vc)
}

func (s *MemoryPropertyStore) GetProperty(
	_ context.Context, id string,
) (*Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
	}
	pc := *p
	return &pc, nil
}

// ListValuations returns the valuations of a property ordered by year
func (s *MemoryPropertyStore) ListValuations(
	_ context.Context, propertyID string,
) ([]*Valuation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.properties[propertyID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}

	res := make([]*Valuation, 0, len(s.valuations[propertyID]))
	for _, v := range s.valuations[propertyID] {
		vc := *v
		res = append(res, &vc)
	}
	slices.SortFunc(res, func(a, b *Valuation) int {
		return cmp.Compare(a.Year, b.Year)
	})
	return res, nil
}

// GetPropertyFunc looks up a property by property_id
func GetPropertyFunc(store PropertyStore) engine.FunctionHandler {
	return func(ctx context.Context, params api.Args) (any, error) {
		id := params.GetString("property_id", "")
		if id == "" {
			return nil, ErrPropertyIDMissing
		}
		p, err := store.GetProperty(ctx, id)
		if err != nil {
			return nil, err
		}
		return p.toMap(), nil
	}
}

// LatestValuationFunc returns the most recent valuation of property_id
func LatestValuationFunc(store PropertyStore) engine.FunctionHandler {
	return func(ctx context.Context, params api.Args) (any, error) {
		id := params.GetString("property_id", "")
		if id == "" {
			return nil, ErrPropertyIDMissing
		}
		vals, err := store.ListValuations(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoValuations, id)
		}
		latest := slices.MaxFunc(vals, func(a, b *Valuation) int {
			return cmp.Compare(a.Year, b.Year)
		})
		return latest.toMap(), nil
	}
}

func (p *Property) toMap() map[string]any {
	return map[string]any{
		"id":         p.ID,
		"address":    p.Address,
		"county":     p.County,
		"owner":      p.Owner,
		"mill_rate":  p.MillRate,
		"exemptions": p.Exemptions,
	}
}

func (v *Valuation) toMap() map[string]any {
	return map[string]any{
		"property_id":    v.PropertyID,
		"year":           float64(v.Year),
		"assessed_value": v.AssessedValue,
		"market_value":   v.MarketValue,
	}
}
