package domain

// NormalizedAsset is the canonical form of one inventoried machine. It is
// produced per row and never persisted by the workflow core.
type NormalizedAsset struct {
	Processor    Processor     `json:"processor"`
	Memory       Memory        `json:"memory"`
	Storage      Storage       `json:"storage"`
	OS           OS            `json:"os"`
	Browser      string        `json:"browser"`
	Headset      Headset       `json:"headset"`
	Remote       bool          `json:"remote"`
	Connectivity *Connectivity `json:"connectivity,omitempty"`
}

type Processor struct {
	Vendor   string  `json:"vendor"`
	Model    string  `json:"model"`
	ClockGHz float64 `json:"clock_ghz"`
	// Cores is inferred from the model family unless the row reports it.
	Cores         int  `json:"cores"`
	CoresInferred bool `json:"cores_inferred"`
}

type Memory struct {
	SizeGB int    `json:"size_gb"`
	Type   string `json:"type"`
}

type Storage struct {
	SizeGB int    `json:"size_gb"`
	Type   string `json:"type"`
	// TypeInferred is set when the type came from capacity, not a keyword.
	TypeInferred bool `json:"type_inferred"`
}

type OS struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// String renders the canonical OS label used for rule matching.
func (o OS) String() string {
	if o.Version == "" {
		return o.Name
	}
	return o.Name + " " + o.Version
}

type Headset struct {
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Connector string `json:"connector"`
}

type Connectivity struct {
	ISP        string  `json:"isp"`
	Technology string  `json:"technology"`
	DownMbps   float64 `json:"down_mbps"`
	UpMbps     float64 `json:"up_mbps"`
}
