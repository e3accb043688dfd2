// Package rules defines the threshold rule set the compliance validator
// evaluates inventory against, and loads it from YAML or JSON.
package rules

// RuleSet holds the acceptance criteria per technical category. A nil axis
// is not configured and passes vacuously.
type RuleSet struct {
	Version      string            `yaml:"version" json:"version"`
	Processor    *ProcessorRule    `yaml:"processor,omitempty" json:"processor,omitempty"`
	Memory       *MemoryRule       `yaml:"memory,omitempty" json:"memory,omitempty"`
	Storage      *StorageRule      `yaml:"storage,omitempty" json:"storage,omitempty"`
	OS           *OSRule           `yaml:"os,omitempty" json:"os,omitempty"`
	Connectivity *ConnectivityRule `yaml:"connectivity,omitempty" json:"connectivity,omitempty"`
	Headset      *HeadsetRule      `yaml:"headset,omitempty" json:"headset,omitempty"`
}

type ProcessorRule struct {
	AcceptedVendors []string `yaml:"accepted_vendors" json:"accepted_vendors"`
	MinClockGHz     float64  `yaml:"min_clock_ghz" json:"min_clock_ghz"`
	MinCores        int      `yaml:"min_cores" json:"min_cores"`
}

// MemoryRule: MinGB is hard, AcceptedTypes is advisory.
type MemoryRule struct {
	MinGB         int      `yaml:"min_gb" json:"min_gb"`
	AcceptedTypes []string `yaml:"accepted_types" json:"accepted_types"`
}

// StorageRule passes when any option is satisfied.
type StorageRule struct {
	Options []StorageOption `yaml:"options" json:"options"`
}

type StorageOption struct {
	Type  string `yaml:"type" json:"type"`
	MinGB int    `yaml:"min_gb" json:"min_gb"`
}

type OSRule struct {
	Accepted []string `yaml:"accepted" json:"accepted"`
}

// ConnectivityRule applies to remote stations only.
type ConnectivityRule struct {
	Technologies []TechnologyRule `yaml:"technologies" json:"technologies"`
}

type TechnologyRule struct {
	Technology  string  `yaml:"technology" json:"technology"`
	MinDownMbps float64 `yaml:"min_down_mbps" json:"min_down_mbps"`
	MinUpMbps   float64 `yaml:"min_up_mbps" json:"min_up_mbps"`
}

// HeadsetRule: the homologation list is enforced only when Strict is set;
// AcceptedConnectors is advisory.
type HeadsetRule struct {
	Strict             bool           `yaml:"strict" json:"strict"`
	Homologated        []HeadsetModel `yaml:"homologated" json:"homologated"`
	AcceptedConnectors []string       `yaml:"accepted_connectors" json:"accepted_connectors"`
}

type HeadsetModel struct {
	Brand string `yaml:"brand" json:"brand"`
	Model string `yaml:"model" json:"model"`
}
