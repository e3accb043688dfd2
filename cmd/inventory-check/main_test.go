package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satdigital/internal/domain"
)

const inventoryCSV = "Procesador;RAM;Disco;Sistema Operativo\n" +
	"Intel Core i5-10400 @ 2.90GHz;16 GB;SSD 480GB;Windows 10 Pro\n" +
	";;;\n" +
	"Intel Celeron N4020 @ 1.10GHz;4 GB;HDD 500GB;Windows 7\n"

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventario.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadRowsDetectsSemicolons(t *testing.T) {
	rows, err := readRows(strings.NewReader("\ufeff"+inventoryCSV), "")
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank rows are skipped")
	assert.Equal(t, "16 GB", rows[0]["RAM"])
	assert.Equal(t, "Intel Core i5-10400 @ 2.90GHz", rows[0]["Procesador"])
}

func TestReadRowsRejectsEmptyInput(t *testing.T) {
	_, err := readRows(strings.NewReader(""), "")
	assert.ErrorContains(t, err, "empty CSV")

	_, err = readRows(strings.NewReader("a,b\n"), "ab")
	assert.ErrorContains(t, err, "one character")
}

func TestRunJSON(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-json", writeCSV(t, inventoryCSV)}, &out)
	require.NoError(t, err)

	var res domain.InventoryBatchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Results, 2)
	assert.False(t, res.Results[1].Compliant)
	assert.Equal(t, 2, res.Results[1].Row)
}

func TestRunStrictFailsOnNonCompliantRows(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-strict", writeCSV(t, inventoryCSV)}, &out)
	assert.ErrorIs(t, err, errNonCompliant)
	assert.Contains(t, out.String(), "FAIL")
	assert.Contains(t, out.String(), "non-compliant")
}

func TestRunUsageErrors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), nil, &out))
	assert.Error(t, run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.csv")}, &out))
	assert.Error(t, run(context.Background(), []string{"-rules", "/nonexistent/rules.yaml", writeCSV(t, inventoryCSV)}, &out))
}
