package inventory

import (
	"regexp"
	"strings"

	"satdigital/internal/domain"
)

var (
	reWindows = regexp.MustCompile(`(?i)\bwin(?:dows)?\s*(11|10|8\.1|8|7|xp|vista)\b`)
	reVersion = regexp.MustCompile(`\d+(?:\.\d+)*`)
	reSpeed   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(gbps|gb|g|mbps|mb|m|kbps|kb|k)?`)
)

type keyword struct {
	match []string
	name  string
}

var linuxDistros = []keyword{
	{[]string{"ubuntu"}, "Ubuntu"},
	{[]string{"debian"}, "Debian"},
	{[]string{"fedora"}, "Fedora"},
	{[]string{"linux mint", "mint"}, "Linux Mint"},
	{[]string{"centos"}, "CentOS"},
	{[]string{"red hat", "rhel"}, "Red Hat"},
}

// canonicalOS maps free text to a short vocabulary ("Windows 11",
// "macOS 14", "Ubuntu 22.04"). Editions such as "Pro" are dropped.
func canonicalOS(raw string) domain.OS {
	if strings.TrimSpace(raw) == "" {
		return domain.OS{}
	}
	lower := fold(raw)
	if m := reWindows.FindStringSubmatch(raw); m != nil {
		v := m[1]
		switch strings.ToLower(v) {
		case "xp":
			v = "XP"
		case "vista":
			v = "Vista"
		}
		return domain.OS{Name: "Windows", Version: v}
	}
	switch {
	case strings.Contains(lower, "windows"):
		return domain.OS{Name: "Windows"}
	case strings.Contains(lower, "macos"), strings.Contains(lower, "mac os"), strings.Contains(lower, "os x"):
		return domain.OS{Name: "macOS", Version: reVersion.FindString(raw)}
	case strings.Contains(lower, "chrome os"), strings.Contains(lower, "chromeos"):
		return domain.OS{Name: "ChromeOS"}
	}
	for _, d := range linuxDistros {
		for _, m := range d.match {
			if strings.Contains(lower, m) {
				return domain.OS{Name: d.name, Version: reVersion.FindString(raw)}
			}
		}
	}
	return domain.OS{Name: strings.TrimSpace(raw)}
}

var browsers = []keyword{
	{[]string{"chrome", "chromium"}, "Chrome"},
	{[]string{"firefox", "mozilla"}, "Firefox"},
	{[]string{"edge"}, "Edge"},
	{[]string{"safari"}, "Safari"},
	{[]string{"opera"}, "Opera"},
	{[]string{"brave"}, "Brave"},
	{[]string{"internet explorer", "explorer"}, "Internet Explorer"},
}

func canonicalBrowser(raw string) string {
	lower := fold(raw)
	for _, b := range browsers {
		for _, m := range b.match {
			if strings.Contains(lower, m) {
				return b.name
			}
		}
	}
	return strings.TrimSpace(raw)
}

// headsetBrands are matched as whole words; the first hit names the brand.
var headsetBrands = []keyword{
	{[]string{"jabra"}, "Jabra"},
	{[]string{"plantronics", "poly"}, "Plantronics"},
	{[]string{"logitech", "logi"}, "Logitech"},
	{[]string{"sennheiser"}, "Sennheiser"},
	{[]string{"epos"}, "EPOS"},
	{[]string{"yealink"}, "Yealink"},
	{[]string{"cisco"}, "Cisco"},
	{[]string{"microsoft"}, "Microsoft"},
	{[]string{"genius"}, "Genius"},
	{[]string{"steren"}, "Steren"},
	{[]string{"hp", "hyperx"}, "HP"},
	{[]string{"lenovo"}, "Lenovo"},
	{[]string{"dell"}, "Dell"},
	{[]string{"sony"}, "Sony"},
}

var connectors = []keyword{
	{[]string{"usb-c", "usb c", "usb tipo c", "tipo c", "type-c", "type c"}, "USB-C"},
	{[]string{"usb"}, "USB"},
	{[]string{"3.5", "jack", "plug", "minijack"}, "3.5mm"},
	{[]string{"bluetooth", "inalambric", "wireless"}, "Bluetooth"},
}

// parseHeadset extracts brand and model from "brand model" text. model may
// come from its own column; connector is inferred from the text when its
// column is empty.
func parseHeadset(raw, model, connector string) domain.Headset {
	h := domain.Headset{}
	words := tokens(raw)
	brandAt := -1
brands:
	for _, b := range headsetBrands {
		for _, m := range b.match {
			for i, w := range words {
				if w == m {
					h.Brand, brandAt = b.name, i
					break brands
				}
			}
		}
	}
	switch {
	case strings.TrimSpace(model) != "":
		h.Model = strings.TrimSpace(model)
	case brandAt >= 0:
		h.Model = modelAfterBrand(raw, words[brandAt])
	default:
		h.Model = strings.TrimSpace(raw)
	}
	if connector = strings.TrimSpace(connector); connector != "" {
		h.Connector = canonicalConnector(connector)
	} else {
		h.Connector = connectorKeyword(raw + " " + model)
	}
	return h
}

// modelAfterBrand drops the brand word and connector hints from raw.
func modelAfterBrand(raw, brandWord string) string {
	var kept []string
	for _, w := range strings.Fields(raw) {
		lw := fold(strings.Trim(w, ",;-()"))
		if lw == brandWord || lw == "" {
			continue
		}
		if isConnectorWord(lw) {
			continue
		}
		kept = append(kept, strings.Trim(w, ",;()"))
	}
	return strings.TrimSpace(strings.Trim(strings.Join(kept, " "), "-"))
}

func isConnectorWord(w string) bool {
	switch w {
	case "usb", "usb-c", "jack", "bluetooth", "3.5mm", "3.5":
		return true
	}
	return false
}

func canonicalConnector(raw string) string {
	if c := connectorKeyword(raw); c != "" {
		return c
	}
	return strings.TrimSpace(raw)
}

func connectorKeyword(raw string) string {
	lower := fold(raw)
	for _, c := range connectors {
		for _, m := range c.match {
			if strings.Contains(lower, m) {
				return c.name
			}
		}
	}
	return ""
}

func tokens(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '-' || r == '/' || r == '(' || r == ')'
	})
}

// isRemote reads the home-office flag column.
func isRemote(raw string) bool {
	v := fold(raw)
	switch v {
	case "si", "yes", "y", "true", "1", "x", "ho":
		return true
	}
	for _, m := range []string{"home office", "homeoffice", "remot", "teletrabajo", "casa"} {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

// ParseSpeedMbps turns "104 mb", "1 Gbps" or "512 kbps" into Mbps.
func ParseSpeedMbps(raw string) (float64, bool) {
	m := reSpeed.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, ok := parseDecimal(m[1])
	if !ok {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "gbps", "gb", "g":
		v *= 1000
	case "kbps", "kb", "k":
		v /= 1000
	}
	return v, true
}
