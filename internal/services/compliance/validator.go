// Package compliance checks normalized inventory assets against a threshold
// rule set.
package compliance

import (
	"fmt"
	"strings"

	"satdigital/internal/domain"
	"satdigital/internal/services/rules"
)

// Verdict is the outcome for one asset. Reasons lists every failed hard
// criterion in axis order; Observations lists advisory findings that do not
// affect Compliant.
type Verdict struct {
	Compliant    bool
	Reasons      []string
	Observations []string
}

type check struct {
	reasons      []string
	observations []string
}

func (c *check) fail(format string, args ...any) {
	c.reasons = append(c.reasons, fmt.Sprintf(format, args...))
}

func (c *check) observe(format string, args ...any) {
	c.observations = append(c.observations, fmt.Sprintf(format, args...))
}

// Validate runs every configured axis; nothing short-circuits. Axes without
// a rule pass.
func Validate(a domain.NormalizedAsset, rs rules.RuleSet) Verdict {
	c := &check{}
	if rs.Processor != nil {
		c.processor(a.Processor, *rs.Processor)
	}
	if rs.Memory != nil {
		c.memory(a.Memory, *rs.Memory)
	}
	if rs.Storage != nil {
		c.storage(a.Storage, *rs.Storage)
	}
	if rs.OS != nil {
		c.os(a.OS, *rs.OS)
	}
	if rs.Connectivity != nil && a.Remote {
		c.connectivity(a.Connectivity, *rs.Connectivity)
	}
	if rs.Headset != nil {
		c.headset(a.Headset, *rs.Headset)
	}
	return Verdict{
		Compliant:    len(c.reasons) == 0,
		Reasons:      c.reasons,
		Observations: c.observations,
	}
}

func (c *check) processor(p domain.Processor, r rules.ProcessorRule) {
	if len(r.AcceptedVendors) > 0 {
		switch {
		case p.Vendor == "":
			c.fail("processor vendor not identified (accepted: %s)", strings.Join(r.AcceptedVendors, ", "))
		case !containsFold(r.AcceptedVendors, p.Vendor):
			c.fail("processor vendor %s not accepted (accepted: %s)", p.Vendor, strings.Join(r.AcceptedVendors, ", "))
		}
	}
	if r.MinClockGHz > 0 && p.ClockGHz < r.MinClockGHz {
		if p.ClockGHz == 0 {
			c.fail("processor clock not reported (minimum %.2f GHz)", r.MinClockGHz)
		} else {
			c.fail("processor clock %.2f GHz below minimum %.2f GHz", p.ClockGHz, r.MinClockGHz)
		}
	}
	if r.MinCores > 0 && p.Cores < r.MinCores {
		inferred := ""
		if p.CoresInferred {
			inferred = " (inferred from model)"
		}
		c.fail("processor has %d cores%s, minimum %d", p.Cores, inferred, r.MinCores)
	}
}

func (c *check) memory(m domain.Memory, r rules.MemoryRule) {
	if r.MinGB > 0 && m.SizeGB < r.MinGB {
		c.fail("memory %d GB below minimum %d GB", m.SizeGB, r.MinGB)
	}
	if len(r.AcceptedTypes) > 0 && m.Type != "" && !containsFold(r.AcceptedTypes, m.Type) {
		c.observe("memory type %s not in accepted types (%s)", m.Type, strings.Join(r.AcceptedTypes, ", "))
	}
}

// storage passes when at least one option matches both type and capacity.
func (c *check) storage(s domain.Storage, r rules.StorageRule) {
	for _, o := range r.Options {
		if strings.EqualFold(o.Type, s.Type) && s.SizeGB >= o.MinGB {
			return
		}
	}
	opts := make([]string, 0, len(r.Options))
	for _, o := range r.Options {
		opts = append(opts, fmt.Sprintf("%s >= %d GB", o.Type, o.MinGB))
	}
	if s.SizeGB == 0 {
		c.fail("storage not reported (requires one of: %s)", strings.Join(opts, ", "))
		return
	}
	typ := s.Type
	if s.TypeInferred {
		typ += " (inferred)"
	}
	c.fail("storage %d GB %s meets none of: %s", s.SizeGB, typ, strings.Join(opts, ", "))
}

// os accepts when an accepted label is contained in the normalized name.
func (c *check) os(o domain.OS, r rules.OSRule) {
	name := o.String()
	if name == "" {
		c.fail("operating system not reported (accepted: %s)", strings.Join(r.Accepted, ", "))
		return
	}
	lower := strings.ToLower(name)
	for _, acc := range r.Accepted {
		if acc = strings.ToLower(strings.TrimSpace(acc)); acc != "" && strings.Contains(lower, acc) {
			return
		}
	}
	c.fail("operating system %s not accepted (accepted: %s)", name, strings.Join(r.Accepted, ", "))
}

func (c *check) connectivity(conn *domain.Connectivity, r rules.ConnectivityRule) {
	if conn == nil || strings.TrimSpace(conn.Technology) == "" {
		c.fail("remote station without reported connection technology")
		return
	}
	t, ok := matchTechnology(conn.Technology, r.Technologies)
	if !ok {
		c.fail("connection technology %s not accepted", conn.Technology)
		return
	}
	if conn.DownMbps < t.MinDownMbps {
		c.fail("download %.1f Mbps below minimum %.1f Mbps for %s", conn.DownMbps, t.MinDownMbps, t.Technology)
	}
	if conn.UpMbps < t.MinUpMbps {
		c.fail("upload %.1f Mbps below minimum %.1f Mbps for %s", conn.UpMbps, t.MinUpMbps, t.Technology)
	}
}

// matchTechnology prefers an exact case-insensitive name, then a rule name
// contained in the reported text ("Fibra óptica" matches "Fibra").
func matchTechnology(reported string, techs []rules.TechnologyRule) (rules.TechnologyRule, bool) {
	reported = strings.TrimSpace(reported)
	for _, t := range techs {
		if strings.EqualFold(t.Technology, reported) {
			return t, true
		}
	}
	lower := strings.ToLower(reported)
	for _, t := range techs {
		if name := strings.ToLower(strings.TrimSpace(t.Technology)); name != "" && strings.Contains(lower, name) {
			return t, true
		}
	}
	return rules.TechnologyRule{}, false
}

func (c *check) headset(h domain.Headset, r rules.HeadsetRule) {
	if r.Strict && !homologated(h, r.Homologated) {
		label := strings.TrimSpace(h.Brand + " " + h.Model)
		if label == "" {
			c.fail("headset not reported (homologation required)")
		} else {
			c.fail("headset %s is not homologated", label)
		}
	}
	if len(r.AcceptedConnectors) > 0 && h.Connector != "" && !containsFold(r.AcceptedConnectors, h.Connector) {
		c.observe("headset connector %s not in accepted connectors (%s)", h.Connector, strings.Join(r.AcceptedConnectors, ", "))
	}
}

// homologated matches brand and model by substring containment in either
// direction. Empty values never match.
func homologated(h domain.Headset, list []rules.HeadsetModel) bool {
	for _, m := range list {
		if lenientMatch(h.Brand, m.Brand) && lenientMatch(h.Model, m.Model) {
			return true
		}
	}
	return false
}

func lenientMatch(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
