// Package inventory turns provider inventory rows with free-text headers
// into normalized assets.
package inventory

import (
	"fmt"
	"strings"

	"satdigital/internal/domain"
)

type Normalizer struct {
	policies     Policies
	assumeRemote bool
}

type Option func(*Normalizer)

// WithPolicies replaces the heuristic inference functions. Nil members keep
// their defaults.
func WithPolicies(p Policies) Option {
	return func(n *Normalizer) {
		if p.Cores != nil {
			n.policies.Cores = p.Cores
		}
		if p.StorageType != nil {
			n.policies.StorageType = p.StorageType
		}
	}
}

// AssumeRemote treats every row as a home-office station, for sheets that
// only list remote workers and carry no flag column.
func AssumeRemote() Option {
	return func(n *Normalizer) { n.assumeRemote = true }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{policies: DefaultPolicies()}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize converts one row. Missing fields stay zero; values that are
// present but unreadable produce a warning. rowNum is used in warnings only.
func (n *Normalizer) Normalize(row Row, rowNum int) (domain.NormalizedAsset, []domain.ParseWarning) {
	var (
		asset    domain.NormalizedAsset
		warnings []domain.ParseWarning
		resolved int
	)
	warn := func(f field, format string, args ...any) {
		warnings = append(warnings, domain.ParseWarning{Row: rowNum, Field: string(f), Message: fmt.Sprintf(format, args...)})
	}
	cols := newColumns(row)

	if raw, ok := cols.lookup(fieldProcessor); ok {
		resolved++
		asset.Processor = n.processor(raw, cols, func(format string, args ...any) { warn(fieldProcessor, format, args...) })
	} else if raw, ok := cols.lookup(fieldClock); ok {
		resolved++
		if ghz, ok := parseClockGHz(raw, true); ok {
			asset.Processor.ClockGHz = ghz
		} else {
			warn(fieldClock, "unreadable clock speed %q", raw)
		}
	}

	if raw, ok := cols.lookup(fieldMemory); ok {
		resolved++
		if gb, ok := ParseMemoryGB(raw); ok {
			asset.Memory.SizeGB = gb
		} else {
			warn(fieldMemory, "unreadable memory size %q", raw)
		}
		asset.Memory.Type = memoryType(raw)
	}
	if raw, ok := cols.lookup(fieldMemoryType); ok {
		resolved++
		if t := memoryType(raw); t != "" {
			asset.Memory.Type = t
		}
	}
	if asset.Memory.SizeGB > 0 && asset.Memory.Type == "" {
		asset.Memory.Type = defaultMemoryType
	}

	if raw, ok := cols.lookup(fieldStorage); ok {
		resolved++
		size, typ, keyword, ok := ParseStorage(raw)
		if !ok {
			warn(fieldStorage, "unreadable storage capacity %q", raw)
		}
		asset.Storage.SizeGB = size
		if keyword {
			asset.Storage.Type = typ
		}
	}
	if raw, ok := cols.lookup(fieldStorageType); ok {
		resolved++
		if t := storageKeyword(raw); t != "" {
			asset.Storage.Type = t
		}
	}
	if asset.Storage.Type == "" && asset.Storage.SizeGB > 0 {
		asset.Storage.Type = n.policies.StorageType(asset.Storage.SizeGB)
		asset.Storage.TypeInferred = true
	}

	if raw, ok := cols.lookup(fieldOS); ok {
		resolved++
		asset.OS = canonicalOS(raw)
	}
	if raw, ok := cols.lookup(fieldBrowser); ok {
		resolved++
		asset.Browser = canonicalBrowser(raw)
	}

	headset, hasHeadset := cols.lookup(fieldHeadset)
	model, hasModel := cols.lookup(fieldHeadsetModel)
	connector, hasConnector := cols.lookup(fieldConnector)
	if hasHeadset || hasModel || hasConnector {
		resolved++
		asset.Headset = parseHeadset(headset, model, connector)
	}

	if raw, ok := cols.lookup(fieldRemote); ok {
		resolved++
		asset.Remote = isRemote(raw)
	}
	if n.assumeRemote {
		asset.Remote = true
	}
	if asset.Remote {
		asset.Connectivity = n.connectivity(cols, &resolved, func(f field, format string, args ...any) { warn(f, format, args...) })
	}

	if resolved == 0 {
		warnings = append(warnings, domain.ParseWarning{Row: rowNum, Field: "*", Message: "no recognizable inventory columns"})
	}
	return asset, warnings
}

func (n *Normalizer) processor(raw string, cols *columns, warn func(string, ...any)) domain.Processor {
	clean := cleanProcessor(raw)
	p := domain.Processor{
		Vendor: processorVendor(clean),
		Model:  processorModel(clean),
	}
	if ghz, ok := parseClockGHz(clean, false); ok {
		p.ClockGHz = ghz
	} else if v, ok := cols.lookup(fieldClock); ok {
		if ghz, ok := parseClockGHz(v, true); ok {
			p.ClockGHz = ghz
		} else {
			warn("unreadable clock speed %q", v)
		}
	}
	if v, ok := cols.lookup(fieldCores); ok {
		if c, ok := parseCores(v); ok {
			p.Cores = c
			return p
		}
		warn("unreadable core count %q", v)
	}
	if p.Vendor == "" && p.Model == "" && p.ClockGHz == 0 {
		warn("unrecognized processor %q", raw)
		return p
	}
	p.Cores = n.policies.Cores(p.Model, clean)
	p.CoresInferred = true
	return p
}

func (n *Normalizer) connectivity(cols *columns, resolved *int, warn func(field, string, ...any)) *domain.Connectivity {
	c := &domain.Connectivity{}
	seen := false
	if v, ok := cols.lookup(fieldISP); ok {
		c.ISP, seen = strings.TrimSpace(v), true
	}
	if v, ok := cols.lookup(fieldTechnology); ok {
		c.Technology, seen = strings.TrimSpace(v), true
	}
	if v, ok := cols.lookup(fieldDownload); ok {
		seen = true
		if mbps, ok := ParseSpeedMbps(v); ok {
			c.DownMbps = mbps
		} else {
			warn(fieldDownload, "unreadable download speed %q", v)
		}
	}
	if v, ok := cols.lookup(fieldUpload); ok {
		seen = true
		if mbps, ok := ParseSpeedMbps(v); ok {
			c.UpMbps = mbps
		} else {
			warn(fieldUpload, "unreadable upload speed %q", v)
		}
	}
	if seen {
		*resolved++
	}
	return c
}

// NormalizeBatch normalizes every row; warnings from all rows are returned
// together and never stop the batch. Rows are numbered from 1.
func (n *Normalizer) NormalizeBatch(rows []Row) ([]domain.NormalizedAsset, []domain.ParseWarning) {
	assets := make([]domain.NormalizedAsset, 0, len(rows))
	var warnings []domain.ParseWarning
	for i, row := range rows {
		a, w := n.Normalize(row, i+1)
		assets = append(assets, a)
		warnings = append(warnings, w...)
	}
	return assets, warnings
}
