package inventory

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	VendorIntel = "Intel"
	VendorAMD   = "AMD"

	StorageSSD  = "SSD"
	StorageHDD  = "HDD"
	StorageNVMe = "NVMe"

	defaultMemoryType = "DDR4"
)

// Commercial tiers: reported capacity is rounded up to the nearest one
// because the OS sees slightly less than nameplate.
var (
	memoryTiersGB  = []int{2, 4, 8, 16, 32, 64, 128, 256, 512}
	storageTiersGB = []int{32, 64, 120, 128, 240, 250, 256, 480, 500, 512, 1000, 1024, 2000, 2048, 4000, 4096, 8000, 8192}
)

var (
	reMarketing  = regexp.MustCompile(`(?i)\((r|tm)\)|®|™|\bcpu\b|@`)
	reGHz        = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*ghz`)
	reMHz        = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*mhz`)
	reNumberUnit = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(tb|gb|mb|kb|t|g|m)\b`)
	reBareNumber = regexp.MustCompile(`(?i)(?:^|[^a-z0-9.,])(\d+(?:[.,]\d+)*)(?:$|[^a-z0-9.,])`)
	reThousands  = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
	reMemType    = regexp.MustCompile(`(?i)\b(lp)?ddr\s?([2-5])`)
	reAMD        = regexp.MustCompile(`(?i)\b(amd|ryzen|athlon|threadripper)\b`)
	reCoresWord  = regexp.MustCompile(`\d+`)

	processorModels = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi[3579]-\d{3,5}[a-z]{0,2}\b`),
		regexp.MustCompile(`(?i)\bryzen\s+\d\s+(?:pro\s+)?\d{3,4}[a-z]{0,2}\b`),
		regexp.MustCompile(`(?i)\bxeon(?:\s+[a-z]\d?-?\d{3,5}[a-z]{0,2}(?:\s+v\d)?|\s+(?:silver|gold|platinum|bronze)\s+\d{4}[a-z]?)?`),
		regexp.MustCompile(`(?i)\b(?:celeron|pentium|athlon)(?:\s+(?:gold\s+|silver\s+)?[a-z]?\d{3,5}[a-z]?)?`),
		regexp.MustCompile(`(?i)\bcore\s+i[3579]\b`),
		regexp.MustCompile(`(?i)\bryzen\s+\d\b`),
	}
)

// cleanProcessor strips marketing marks so patterns see plain tokens.
func cleanProcessor(raw string) string {
	s := reMarketing.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(s), " ")
}

func processorVendor(s string) string {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "intel") || reIntelFamily.MatchString(lower) ||
		strings.Contains(lower, "xeon") || strings.Contains(lower, "celeron") || strings.Contains(lower, "pentium"):
		return VendorIntel
	case reAMD.MatchString(lower):
		return VendorAMD
	}
	return ""
}

func processorModel(s string) string {
	for _, re := range processorModels {
		if m := re.FindString(s); m != "" {
			return strings.Join(strings.Fields(m), " ")
		}
	}
	return ""
}

// parseClockGHz reads "3.00GHz" style text; MHz values are converted. With
// allowBare a plain number is accepted too, taken as MHz above 100.
func parseClockGHz(s string, allowBare bool) (float64, bool) {
	if m := reGHz.FindStringSubmatch(s); m != nil {
		return parseDecimal(m[1])
	}
	if m := reMHz.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v / 1000, true
		}
	}
	if !allowBare {
		return 0, false
	}
	if v, ok := parseDecimal(strings.TrimSpace(s)); ok {
		if v > 100 {
			return v / 1000, true
		}
		return v, true
	}
	return 0, false
}

func parseCores(s string) (int, bool) {
	m := reCoresWord.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseDecimal accepts "7.84", "7,84" and "1,024".
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if reThousands.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0, false
	}
	return v, true
}

// parseCapacity returns the first number carrying a unit, or else the first
// free-standing number ("DDR4" does not count) with an empty unit.
func parseCapacity(s string) (float64, string, bool) {
	if m := reNumberUnit.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok && v > 0 {
			return v, strings.ToLower(m[2]), true
		}
	}
	if m := reBareNumber.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok && v > 0 {
			return v, "", true
		}
	}
	return 0, "", false
}

// ParseMemoryGB converts "8GB", "7.84 GB" or a bare number (MB when >= 1024,
// otherwise GB) to a commercial tier.
func ParseMemoryGB(s string) (int, bool) {
	v, unit, ok := parseCapacity(s)
	if !ok {
		return 0, false
	}
	var gb float64
	switch unit {
	case "tb", "t":
		gb = v * 1024
	case "gb", "g":
		gb = v
	case "mb", "m":
		gb = v / 1024
	case "kb":
		gb = v / (1024 * 1024)
	default:
		if v >= 1024 {
			gb = v / 1024
		} else {
			gb = v
		}
	}
	return roundUpTier(gb, memoryTiersGB, 1), true
}

func memoryType(s string) string {
	m := reMemType.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + "DDR" + m[2]
}

// ParseStorage reads capacity (TB, GB or bare GB) and the type keyword.
// keyword is false when the type has to be inferred.
func ParseStorage(s string) (sizeGB int, typ string, keyword bool, ok bool) {
	typ = storageKeyword(s)
	v, unit, found := parseCapacity(s)
	if !found {
		return 0, typ, typ != "", false
	}
	var gb float64
	switch unit {
	case "tb", "t":
		gb = v * 1024
	case "mb", "m":
		gb = v / 1024
	default:
		gb = v
	}
	return roundUpTier(gb, storageTiersGB, 1024), typ, typ != "", true
}

func storageKeyword(s string) string {
	lower := fold(s)
	switch {
	case strings.Contains(lower, "nvme"):
		return StorageNVMe
	case strings.Contains(lower, "ssd"), strings.Contains(lower, "solido"),
		strings.Contains(lower, "m.2"), strings.Contains(lower, "flash"):
		return StorageSSD
	case strings.Contains(lower, "hdd"), strings.Contains(lower, "mecanico"),
		strings.Contains(lower, "rpm"), strings.Contains(lower, "disco duro"):
		return StorageHDD
	}
	return ""
}

// roundUpTier returns the first tier >= v. Past the ladder it rounds up to
// the next multiple of step.
func roundUpTier(v float64, tiers []int, step int) int {
	const epsilon = 1e-9
	for _, t := range tiers {
		if v <= float64(t)+epsilon {
			return t
		}
	}
	return int(math.Ceil(v/float64(step)-epsilon)) * step
}
