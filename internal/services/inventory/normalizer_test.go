package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satdigital/internal/domain"
)

func TestParseMemoryGB(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"7.84 GB", 8},
		{"8192", 8},
		{"8GB", 8},
		{"16 GB DDR4", 16},
		{"3,9 GB", 4},
		{"4096 MB", 4},
		{"12", 16},
		{"1 TB", 1024},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMemoryGB(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ParseMemoryGB("mucha")
	assert.False(t, ok)
}

func TestParseStorage(t *testing.T) {
	tests := []struct {
		in      string
		size    int
		typ     string
		keyword bool
	}{
		{"256GB SSD", 256, StorageSSD, true},
		{"1TB HDD", 1024, StorageHDD, true},
		{"931 GB", 1000, "", false},
		{"480 GB", 480, "", false},
		{"500 disco duro", 500, StorageHDD, true},
		{"NVMe 512", 512, StorageNVMe, true},
		{"9000", 9216, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			size, typ, keyword, ok := ParseStorage(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.keyword, keyword)
		})
	}
}

func TestParseSpeedMbps(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"104 mb", 104},
		{"50 Mbps", 50},
		{"1 Gbps", 1000},
		{"512 kbps", 0.512},
		{"20", 20},
		{"10,5 mb", 10.5},
	}
	for _, tt := range tests {
		got, ok := ParseSpeedMbps(tt.in)
		require.True(t, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestNormalizeProcessor(t *testing.T) {
	n := New()

	asset, warnings := n.Normalize(Row{"Procesador (modelo completo)": "Intel(R) Core(TM) i5-8500 CPU @ 3.00GHz"}, 1)
	assert.Empty(t, warnings)
	assert.Equal(t, domain.Processor{
		Vendor: VendorIntel, Model: "i5-8500", ClockGHz: 3.0, Cores: 6, CoresInferred: true,
	}, asset.Processor)

	asset, _ = n.Normalize(Row{"CPU": "AMD Ryzen 5 3500U 2.1 GHz"}, 1)
	assert.Equal(t, VendorAMD, asset.Processor.Vendor)
	assert.Equal(t, "Ryzen 5 3500U", asset.Processor.Model)
	assert.InDelta(t, 2.1, asset.Processor.ClockGHz, 1e-9)
	assert.Equal(t, 4, asset.Processor.Cores)

	asset, _ = n.Normalize(Row{"Procesador": "Intel Core i7-10700", "Núcleos": "8"}, 1)
	assert.Equal(t, 8, asset.Processor.Cores)
	assert.False(t, asset.Processor.CoresInferred)
	assert.Zero(t, asset.Processor.ClockGHz)

	asset, _ = n.Normalize(Row{"Velocidad del procesador": "2400"}, 1)
	assert.InDelta(t, 2.4, asset.Processor.ClockGHz, 1e-9)
	assert.Empty(t, asset.Processor.Vendor)
}

func TestInferCores(t *testing.T) {
	assert.Equal(t, 4, InferCores("i3-10100", ""))
	assert.Equal(t, 6, InferCores("i5-8500", ""))
	assert.Equal(t, 8, InferCores("i7-10700", ""))
	assert.Equal(t, 12, InferCores("i9-9900K", ""))
	assert.Equal(t, 4, InferCores("", "Intel Pentium Quad Core"))
	assert.Equal(t, 2, InferCores("", "AMD Athlon Dual Core"))
	assert.Equal(t, 4, InferCores("", "Celeron"))
}

func TestNormalizeMemoryAndStorage(t *testing.T) {
	n := New()
	asset, warnings := n.Normalize(Row{
		"Memoria RAM (GB)":             "7.84 GB",
		"Disco duro (capacidad y tipo)": "480 GB",
	}, 3)
	assert.Empty(t, warnings)
	assert.Equal(t, domain.Memory{SizeGB: 8, Type: "DDR4"}, asset.Memory)
	assert.Equal(t, domain.Storage{SizeGB: 480, Type: StorageSSD, TypeInferred: true}, asset.Storage)

	asset, _ = n.Normalize(Row{"RAM": "16GB DDR5", "Almacenamiento": "2 TB HDD"}, 1)
	assert.Equal(t, domain.Memory{SizeGB: 16, Type: "DDR5"}, asset.Memory)
	assert.Equal(t, domain.Storage{SizeGB: 2048, Type: StorageHDD}, asset.Storage)

	asset, _ = n.Normalize(Row{"Disco": "1000", "Tipo de disco": "Estado sólido"}, 1)
	assert.Equal(t, domain.Storage{SizeGB: 1000, Type: StorageSSD}, asset.Storage)
}

func TestNormalizeStoragePolicyOverride(t *testing.T) {
	n := New(WithPolicies(Policies{StorageType: func(int) string { return StorageHDD }}))
	asset, _ := n.Normalize(Row{"Almacenamiento": "480 GB"}, 1)
	assert.Equal(t, StorageHDD, asset.Storage.Type)
	assert.True(t, asset.Storage.TypeInferred)
}

func TestNormalizeSoftwareAndHeadset(t *testing.T) {
	asset, _ := New().Normalize(Row{
		"Sistema Operativo": "Windows 10 Pro",
		"Navegador":         "Google Chrome 120",
		"Diadema":           "Jabra Biz 1500 USB",
	}, 1)
	assert.Equal(t, "Windows 10", asset.OS.String())
	assert.Equal(t, "Chrome", asset.Browser)
	assert.Equal(t, domain.Headset{Brand: "Jabra", Model: "Biz 1500", Connector: "USB"}, asset.Headset)
}

func TestNormalizeConnectivity(t *testing.T) {
	row := Row{
		"Home Office":                "Sí",
		"Proveedor de internet":      " Telmex ",
		"Tipo de conexión":           "Fibra",
		"Velocidad de bajada (Mbps)": "104 mb",
		"Velocidad de subida":        "20",
	}
	asset, warnings := New().Normalize(row, 1)
	assert.Empty(t, warnings)
	assert.True(t, asset.Remote)
	require.NotNil(t, asset.Connectivity)
	assert.Equal(t, domain.Connectivity{ISP: "Telmex", Technology: "Fibra", DownMbps: 104, UpMbps: 20}, *asset.Connectivity)

	row["Home Office"] = "No"
	asset, _ = New().Normalize(row, 1)
	assert.False(t, asset.Remote)
	assert.Nil(t, asset.Connectivity)

	asset, _ = New(AssumeRemote()).Normalize(Row{"Velocidad de bajada": "30"}, 1)
	require.NotNil(t, asset.Connectivity)
	assert.Equal(t, 30.0, asset.Connectivity.DownMbps)
}

func TestNormalizeWarnings(t *testing.T) {
	asset, warnings := New().Normalize(Row{"Comentarios": "equipo nuevo"}, 7)
	assert.Equal(t, domain.NormalizedAsset{}, asset)
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.ParseWarning{Row: 7, Field: "*", Message: "no recognizable inventory columns"}, warnings[0])

	_, warnings = New().Normalize(Row{"RAM": "mucha"}, 2)
	require.Len(t, warnings, 1)
	assert.Equal(t, "memory", warnings[0].Field)
}

func TestNormalizeBatchContinues(t *testing.T) {
	assets, warnings := New().NormalizeBatch([]Row{
		{"RAM": "8192"},
		{},
		{"RAM": "4 GB"},
	})
	require.Len(t, assets, 3)
	assert.Equal(t, 8, assets[0].Memory.SizeGB)
	assert.Equal(t, 4, assets[2].Memory.SizeGB)
	require.Len(t, warnings, 1)
	assert.Equal(t, 2, warnings[0].Row)
}

func TestColumnOwnership(t *testing.T) {
	cols := newColumns(Row{
		"Disco (GB)":    "500",
		"Tipo de disco": "HDD",
		"Tipo RAM":      "DDR3",
	})
	assert.Equal(t, "500", cols.value(fieldStorage))
	assert.Equal(t, "HDD", cols.value(fieldStorageType))
	assert.Equal(t, "DDR3", cols.value(fieldMemoryType))
	assert.Empty(t, cols.value(fieldMemory))
}

func TestColumnOwnershipPrefersSpecificField(t *testing.T) {
	cols := newColumns(Row{
		"Velocidad CPU (GHz)": "3.2",
		"Modelo CPU":          "Intel Core i7-10700",
	})
	assert.Equal(t, "3.2", cols.value(fieldClock))
	assert.Equal(t, "Intel Core i7-10700", cols.value(fieldProcessor))

	// Only the tie-breaking suffix matches here.
	cols = newColumns(Row{"CPU GHz": "2.4"})
	assert.Equal(t, "2.4", cols.value(fieldClock))
	assert.Empty(t, cols.value(fieldProcessor))

	asset, _ := New().Normalize(Row{"CPU (marca y modelo)": "Intel Core i5-8500", "Velocidad CPU (GHz)": "3.0"}, 1)
	assert.Equal(t, VendorIntel, asset.Processor.Vendor)
	assert.InDelta(t, 3.0, asset.Processor.ClockGHz, 1e-9)
}
