package inventory

import (
	"regexp"
	"strings"
)

// Policies holds the heuristic inferences the normalizer applies when a row
// does not report a value directly. They are business rules awaiting product
// confirmation, so callers may replace them.
type Policies struct {
	// Cores infers a core count from the processor model and raw text.
	Cores func(model, raw string) int
	// StorageType infers SSD/HDD from capacity when no keyword is present.
	StorageType func(sizeGB int) string
}

func DefaultPolicies() Policies {
	return Policies{Cores: InferCores, StorageType: InferStorageType}
}

var reIntelFamily = regexp.MustCompile(`(?i)\bi([3579])(?:\b|-)`)

// InferCores approximates cores from the model family: i3=4, i5=6, i7=8,
// i9=12, "quad"=4, "dual"=2, otherwise 4. Not measured data.
func InferCores(model, raw string) int {
	text := strings.ToLower(model + " " + raw)
	if m := reIntelFamily.FindStringSubmatch(text); m != nil {
		switch m[1] {
		case "3":
			return 4
		case "5":
			return 6
		case "7":
			return 8
		case "9":
			return 12
		}
	}
	switch {
	case strings.Contains(text, "quad"):
		return 4
	case strings.Contains(text, "dual"):
		return 2
	}
	return 4
}

// InferStorageType treats up to 512GB as SSD and anything larger as HDD.
func InferStorageType(sizeGB int) string {
	if sizeGB <= 0 {
		return ""
	}
	if sizeGB <= 512 {
		return StorageSSD
	}
	return StorageHDD
}
