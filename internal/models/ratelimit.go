package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Descriptor key and unit constants used by the Istio ratelimit service
// configuration format.
const (
	DescriptorKeyPartner = "PARTNER"
	DescriptorKeyPath    = "PATH"
	RateLimitUnitMinute  = "minute"
)

// RateLimitSpec is the innermost rate limit of a descriptor.
type RateLimitSpec struct {
	Unit            string `json:"unit" yaml:"unit"`
	RequestsPerUnit int    `json:"requests_per_unit" yaml:"requests_per_unit"`
}

// PathDescriptor binds one API path to its rate limit under a partner.
type PathDescriptor struct {
	Key       string         `json:"key" yaml:"key"`
	Value     string         `json:"value" yaml:"value"`
	RateLimit *RateLimitSpec `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// PartnerDescriptor groups the path descriptors of one partner.
type PartnerDescriptor struct {
	Key         string           `json:"key" yaml:"key"`
	Value       string           `json:"value" yaml:"value"`
	Descriptors []PathDescriptor `json:"descriptors,omitempty" yaml:"descriptors,omitempty"`
}

// RateLimitConfig is the full descriptor tree in the Istio ratelimit service
// format: domain -> PARTNER descriptors -> PATH descriptors -> rate limit.
type RateLimitConfig struct {
	Domain      string              `json:"domain" yaml:"domain"`
	Descriptors []PartnerDescriptor `json:"descriptors" yaml:"descriptors"`
}

// ConfigKey identifies one (partner, path) entry of a descriptor tree.
type ConfigKey struct {
	Partner string
	Path    string
}

// Flatten returns the (partner, path) -> requests-per-minute mapping of the
// tree. Entries without a rate limit are skipped.
func (c *RateLimitConfig) Flatten() map[ConfigKey]int {
	flat := make(map[ConfigKey]int)
	if c == nil {
		return flat
	}
	for _, partner := range c.Descriptors {
		for _, path := range partner.Descriptors {
			if path.RateLimit == nil {
				continue
			}
			flat[ConfigKey{Partner: partner.Value, Path: path.Value}] = path.RateLimit.RequestsPerUnit
		}
	}
	return flat
}

// FindPartner returns the index of the partner's descriptor, or -1.
func (c *RateLimitConfig) FindPartner(partner string) int {
	for i, d := range c.Descriptors {
		if d.Value == partner {
			return i
		}
	}
	return -1
}

// FindPath returns the index of the path's descriptor under a partner, or -1.
func (d *PartnerDescriptor) FindPath(path string) int {
	for i, p := range d.Descriptors {
		if p.Value == path {
			return i
		}
	}
	return -1
}

// SortDescriptors orders partners and their paths lexically so that the
// rendered artifact is deterministic across runs.
func (c *RateLimitConfig) SortDescriptors() {
	sort.Slice(c.Descriptors, func(i, j int) bool {
		return c.Descriptors[i].Value < c.Descriptors[j].Value
	})
	for i := range c.Descriptors {
		paths := c.Descriptors[i].Descriptors
		sort.Slice(paths, func(a, b int) bool {
			return paths[a].Value < paths[b].Value
		})
	}
}

// RateChange describes one modified (partner, path) limit between two
// configurations.
type RateChange struct {
	Partner       string  `json:"partner"`
	Path          string  `json:"path"`
	OldLimit      int     `json:"old_limit"`
	NewLimit      int     `json:"new_limit"`
	ChangePercent float64 `json:"change_percent"`
}

// ChangeReport summarizes the difference between an existing configuration
// and a newly generated one. Skipped counts recommendations a selective
// merge refused because no existing entry matched.
type ChangeReport struct {
	Added     []RateChange `json:"added"`
	Removed   []RateChange `json:"removed"`
	Modified  []RateChange `json:"modified"`
	Unchanged int          `json:"unchanged"`
	Skipped   int          `json:"skipped"`
}

// TotalChanges counts entries that differ between the two configurations.
func (r *ChangeReport) TotalChanges() int {
	return len(r.Added) + len(r.Removed) + len(r.Modified)
}

// PercentChange computes (new-old)/old*100 rounded to two decimal places.
// A zero old limit yields 100 for any increase and 0 otherwise.
func PercentChange(oldLimit, newLimit int) float64 {
	if oldLimit == 0 {
		if newLimit > 0 {
			return 100
		}
		return 0
	}
	oldDec := decimal.NewFromInt(int64(oldLimit))
	newDec := decimal.NewFromInt(int64(newLimit))
	pct := newDec.Sub(oldDec).Div(oldDec).Mul(decimal.NewFromInt(100))
	f, _ := pct.Round(2).Float64()
	return f
}
