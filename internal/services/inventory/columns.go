package inventory

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Row is one inventory line keyed by the provider's column header.
type Row map[string]string

type field string

const (
	fieldProcessor    field = "processor"
	fieldClock        field = "processor_clock"
	fieldCores        field = "processor_cores"
	fieldMemory       field = "memory"
	fieldMemoryType   field = "memory_type"
	fieldStorage      field = "storage"
	fieldStorageType  field = "storage_type"
	fieldOS           field = "os"
	fieldBrowser      field = "browser"
	fieldHeadset      field = "headset"
	fieldHeadsetModel field = "headset_model"
	fieldConnector    field = "headset_connector"
	fieldRemote       field = "remote"
	fieldISP          field = "isp"
	fieldTechnology   field = "technology"
	fieldDownload     field = "download"
	fieldUpload       field = "upload"
)

// Candidates shorter than this match whole words only ("SO", "RAM", "ISP").
const wordMatchBelow = 4

// candidates lists known header spellings per field, most specific first.
var candidates = map[field][]string{
	fieldProcessor:    {"Procesador", "Processor", "CPU", "Modelo de procesador", "Modelo del procesador"},
	fieldClock:        {"Velocidad del procesador", "Velocidad procesador", "Velocidad de CPU", "Velocidad CPU", "Frecuencia", "Clock speed", "GHz"},
	fieldCores:        {"Nucleos", "Numero de nucleos", "Cores"},
	fieldMemory:       {"RAM", "Memoria RAM", "Memoria", "Memory", "Capacidad RAM"},
	fieldMemoryType:   {"Tipo de memoria", "Tipo RAM", "Tipo de RAM", "Memory type"},
	fieldStorage:      {"Disco duro", "Almacenamiento", "Disco", "Storage", "Capacidad de disco", "HDD", "SSD"},
	fieldStorageType:  {"Tipo de disco", "Tipo de almacenamiento", "Storage type"},
	fieldOS:           {"Sistema Operativo", "SO", "OS", "Operating system"},
	fieldBrowser:      {"Navegador", "Browser"},
	fieldHeadset:      {"Headset", "Diadema", "Auriculares", "Marca de headset", "Marca diadema"},
	fieldHeadsetModel: {"Modelo de headset", "Modelo diadema", "Headset model"},
	fieldConnector:    {"Conector", "Tipo de conector", "Connector"},
	fieldRemote:       {"Home Office", "Teletrabajo", "Modalidad", "Tipo de puesto", "Remote"},
	fieldISP:          {"Proveedor de internet", "ISP", "Proveedor de servicio de internet", "Internet provider"},
	fieldTechnology:   {"Tipo de conexion", "Tecnologia", "Technology", "Tipo de conexion a internet"},
	fieldDownload:     {"Velocidad de bajada", "Velocidad de descarga", "Bajada", "Download"},
	fieldUpload:       {"Velocidad de subida", "Velocidad de carga", "Subida", "Upload"},
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lower-cases s, strips accents and collapses whitespace.
func fold(s string) string {
	out, _, err := transform.String(folder, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// columns resolves logical fields against one row's headers.
type columns struct {
	row     Row
	headers []string          // sorted for deterministic substring matching
	folded  map[string]string // header -> folded header
	exact   map[string]bool   // headers claimed by an exact candidate match
	owner   map[string]field  // non-exact header -> field with the longest contained candidate
}

func newColumns(row Row) *columns {
	c := &columns{
		row:    row,
		folded: make(map[string]string, len(row)),
		exact:  map[string]bool{},
		owner:  map[string]field{},
	}
	for h := range row {
		c.headers = append(c.headers, h)
		c.folded[h] = fold(h)
	}
	sort.Strings(c.headers)
	for _, cands := range candidates {
		for _, cand := range cands {
			fc := fold(cand)
			for _, h := range c.headers {
				if c.folded[h] == fc {
					c.exact[h] = true
				}
			}
		}
	}
	best := map[string]int{}
	for f, cands := range candidates {
		for _, cand := range cands {
			fc := fold(cand)
			for _, h := range c.headers {
				if c.exact[h] || !contains(c.folded[h], fc) {
					continue
				}
				if len(fc) > best[h] || (len(fc) == best[h] && moreSpecific(f, c.owner[h])) {
					best[h] = len(fc)
					c.owner[h] = f
				}
			}
		}
	}
	return c
}

// moreSpecific breaks ownership ties: sub-fields carry longer names than the
// field they refine (processor_clock, memory_type), then name order decides.
func moreSpecific(f, than field) bool {
	if than == "" || len(f) != len(than) {
		return than == "" || len(f) > len(than)
	}
	return f < than
}

// lookup returns the trimmed value for f: exact header match first, then a
// case-insensitive substring match. Headers may carry instructions in
// parentheses, so the substring pass is what usually hits; a header goes to
// the field whose candidate is its longest substring.
func (c *columns) lookup(f field) (string, bool) {
	cands := candidates[f]
	for _, cand := range cands {
		fc := fold(cand)
		for _, h := range c.headers {
			if c.folded[h] != fc {
				continue
			}
			if v := strings.TrimSpace(c.row[h]); v != "" {
				return v, true
			}
		}
	}
	for _, cand := range cands {
		fc := fold(cand)
		for _, h := range c.headers {
			if c.exact[h] || c.owner[h] != f || !contains(c.folded[h], fc) {
				continue
			}
			if v := strings.TrimSpace(c.row[h]); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// value is lookup without the presence flag; empty cells count as missing.
func (c *columns) value(f field) string {
	v, _ := c.lookup(f)
	return v
}

func contains(header, cand string) bool {
	if len(cand) >= wordMatchBelow {
		return strings.Contains(header, cand)
	}
	for _, tok := range strings.FieldsFunc(header, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if tok == cand {
			return true
		}
	}
	return false
}
