package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ramonehamilton/wfmarket-companion/internal/reports"
)

func f64(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

func sampleSets() []reports.SetRow {
	return []reports.SetRow{
		{
			URLName:      "ash_prime_set",
			Name:         "Ash Prime Set",
			Link:         "https://warframe.market/items/ash_prime_set?type=sell",
			Category:     reports.CategoryWarframes,
			Volume24h:    iptr(12),
			AvgPrice24h:  f64(100),
			LivePrice:    f64(100),
			LiveDev:      f64(2),
			OrderCount:   5,
			PartsSum24h:  f64(80),
			PartsSumLive: f64(75),
			Delta24h:     f64(20),
			DeltaPct24h:  f64(25),
			DeltaLive:    f64(25),
			DeltaPctLive: f64(33.33),
			Parts: []reports.PartRow{
				{URLName: "ash_prime_blueprint", Name: "Ash Prime Blueprint", Link: "https://warframe.market/items/ash_prime_blueprint?type=sell", Quantity: 1, LivePrice: f64(30)},
				{URLName: "ash_prime_chassis", Name: "Ash Prime Chassis", Link: "https://warframe.market/items/ash_prime_chassis?type=sell", Quantity: 1, LivePrice: f64(45)},
			},
		},
		{
			URLName:      "braton_prime_set",
			Name:         "Braton Prime Set",
			Link:         "https://warframe.market/items/braton_prime_set?type=sell",
			Category:     reports.CategoryPrimary,
			LivePrice:    f64(10),
			PartsSumLive: f64(14),
			DeltaLive:    f64(-4),
			DeltaPctLive: f64(-28.57),
			Parts: []reports.PartRow{
				{URLName: "braton_prime_barrel", Name: "Braton Prime Barrel", Quantity: 2, LivePrice: f64(7)},
			},
		},
	}
}

func sampleMods() []reports.ModRow {
	return []reports.ModRow{
		{
			URLName:        "primed_flow",
			Name:           "Primed Flow",
			Link:           "https://warframe.market/items/primed_flow?type=sell",
			Rarity:         "legendary",
			MaxRank:        10,
			EndoToMax:      iptr(40920),
			UnrankedAvg:    f64(20),
			UnrankedOrders: 4,
			MaxedAvg:       f64(120),
			MaxedOrders:    3,
			Delta:          f64(100),
			DeltaPct:       f64(500),
			EndoPerPlat:    f64(409.2),
			PlatPerEndo:    f64(0.0024),
		},
	}
}

func rawCell(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]struct{}{}

	assert.Equal(t, "Warframes", UniqueSheetName("Warframes", used))
	// Collisions ignore case, but the caller's casing is kept.
	assert.Equal(t, "warframes 2", UniqueSheetName("warframes", used))
	assert.Equal(t, "Warframes 3", UniqueSheetName("Warframes", used))

	long := strings.Repeat("x", 40)
	first := UniqueSheetName(long, used)
	second := UniqueSheetName(long, used)
	assert.Equal(t, strings.Repeat("x", 31), first)
	assert.Equal(t, strings.Repeat("x", 29)+" 2", second)
	assert.Len(t, second, MaxSheetNameLength)

	assert.Equal(t, "a b", UniqueSheetName("a/b", used))
	assert.Equal(t, "Sheet", UniqueSheetName("  ", used))

	ru := UniqueSheetName(strings.Repeat("Э", 35), used)
	assert.Equal(t, 31, len([]rune(ru)))
}

func TestWriteSets_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.xlsx")
	require.NoError(t, WriteSets(path, sampleSets(), Settings{Language: "en", TopN: 4, Overwrite: true}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Warframes", "Primary weapons"}, f.GetSheetList())

	title, err := f.GetCellValue("Warframes", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Warframes: Warframe Market Profit Overview", title)

	header, err := f.GetCellValue("Warframes", "G2")
	require.NoError(t, err)
	assert.Equal(t, "Live price (top-4)", header)

	assert.Equal(t, "Open", rawCell(t, f, "Warframes", "A3"))
	ok, link, err := f.GetCellHyperLink("Warframes", "A3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://warframe.market/items/ash_prime_set?type=sell", link)

	assert.Equal(t, "ash_prime_set", rawCell(t, f, "Warframes", "B3"))
	assert.Equal(t, "25", rawCell(t, f, "Warframes", "M3"))
	assert.Equal(t, "33.33", rawCell(t, f, "Warframes", "N3"))
	assert.Equal(t, "ash_prime_blueprint", rawCell(t, f, "Warframes", "B4"))
	assert.Equal(t, "1", rawCell(t, f, "Warframes", "D4"))
	assert.Equal(t, "ash_prime_chassis", rawCell(t, f, "Warframes", "B5"))
	assert.Empty(t, rawCell(t, f, "Warframes", "M5"))

	// Notes start after one blank row.
	assert.Empty(t, rawCell(t, f, "Warframes", "A6"))
	assert.Contains(t, rawCell(t, f, "Warframes", "A7"), "_set")

	assert.Equal(t, "braton_prime_barrel", rawCell(t, f, "Primary weapons", "B4"))
	assert.Equal(t, "2", rawCell(t, f, "Primary weapons", "D4"))
	assert.Equal(t, "-4", rawCell(t, f, "Primary weapons", "M3"))

	merged, err := f.GetMergeCells("Warframes")
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "A1", merged[0].GetStartAxis())
	assert.Equal(t, "N1", merged[0].GetEndAxis())
}

func TestWriteSets_XLSXRussian(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.xlsx")
	require.NoError(t, WriteSets(path, sampleSets()[:1], Settings{Language: "ru", TopN: 3, Overwrite: true}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Варфреймы"}, f.GetSheetList())
	assert.Equal(t, "Открыть", rawCell(t, f, "Варфреймы", "A3"))
	assert.Equal(t, "Реальная цена (топ-3)", rawCell(t, f, "Варфреймы", "G2"))
}

func TestWriteSets_XLSXEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteSets(path, nil, Settings{Language: "en", TopN: 4, Overwrite: true}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"No data"}, f.GetSheetList())
	assert.Equal(t, "No data", rawCell(t, f, "No data", "A1"))
}

func TestWriteSets_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.csv")
	require.NoError(t, WriteSets(path, sampleSets(), Settings{TopN: 4, Overwrite: true}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6) // header + 2 sets + 3 parts

	assert.Equal(t, "row_type", records[0][0])
	assert.Equal(t, []string{"set", "ash_prime_set", "warframes", "ash_prime_set"}, records[1][:4])
	assert.Equal(t, []string{"part", "ash_prime_set", "warframes", "ash_prime_blueprint"}, records[2][:4])
	assert.Equal(t, "part", records[5][0])
	assert.Equal(t, "2", records[5][6])
}

func TestWriteSets_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.json")
	require.NoError(t, WriteSets(path, sampleSets(), Settings{TopN: 4, Overwrite: true, PrettyJSON: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []reports.SetRow
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].Parts, 2)
	assert.Nil(t, rows[1].Delta24h)
}

func TestWriteRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	err := WriteSets(path, sampleSets(), Settings{TopN: 4})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestWriteUnsupportedExtension(t *testing.T) {
	err := WriteMods(filepath.Join(t.TempDir(), "mods.txt"), sampleMods(), Settings{TopN: 4})
	assert.Error(t, err)
}

func TestWriteMods_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mods.xlsx")
	require.NoError(t, WriteMods(path, sampleMods(), Settings{Language: "en", TopN: 4, Overwrite: true}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"mods"}, f.GetSheetList())
	assert.Equal(t, "Platinum per Endo", rawCell(t, f, "mods", "R1"))
	assert.Equal(t, "primed_flow", rawCell(t, f, "mods", "B2"))
	assert.Equal(t, "Legendary", rawCell(t, f, "mods", "D2"))
	assert.Equal(t, "40920", rawCell(t, f, "mods", "F2"))
	assert.Equal(t, "0.0024", rawCell(t, f, "mods", "R2"))
	assert.Empty(t, rawCell(t, f, "mods", "G2"))
	assert.Empty(t, rawCell(t, f, "mods", "S2"))
}

func TestWriteMods_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mods.csv")
	require.NoError(t, WriteMods(path, sampleMods(), Settings{TopN: 4, Overwrite: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "url_name,item_name,link,rarity,max_rank,endo_to_max"))
	assert.Contains(t, lines[1], "primed_flow,Primed Flow")
	assert.Contains(t, lines[1], ",0.0024,")
}

func TestWriteEndo_XLSXEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endo.xlsx")
	require.NoError(t, WriteEndo(path, nil, Settings{Language: "ru", TopN: 4, Overwrite: true}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Эндо"}, f.GetSheetList())
	assert.Equal(t, "Открыть", rawCell(t, f, "Эндо", "A1"))
	assert.Equal(t, "Нет данных", rawCell(t, f, "Эндо", "A2"))
}

func TestWriteCombined(t *testing.T) {
	dir := t.TempDir()
	combined := Combined{
		Sets: sampleSets(),
		Mods: sampleMods(),
		Endo: []reports.EndoRow{{
			URLName:     "cheap_common",
			Name:        "Cheap Common",
			Rarity:      "common",
			Rank:        10,
			Endo:        7672,
			Price:       f64(4),
			EndoPerPlat: f64(1918),
		}},
		SetsTopN: 4,
		ModsTopN: 4,
		EndoTopN: 4,
	}

	path := filepath.Join(dir, "all.xlsx")
	require.NoError(t, WriteCombined(path, combined, Settings{Language: "en", Overwrite: true}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Warframes", "Primary weapons", "mods", "endo"}, f.GetSheetList())
	assert.Equal(t, "7672", rawCell(t, f, "endo", "G2"))
	assert.Equal(t, "1918", rawCell(t, f, "endo", "L2"))

	jsonPath := filepath.Join(dir, "all.json")
	require.NoError(t, WriteCombined(jsonPath, combined, Settings{Overwrite: true}))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "sets")
	assert.Contains(t, decoded, "mods")
	assert.Contains(t, decoded, "endo")

	assert.Error(t, WriteCombined(filepath.Join(dir, "all.csv"), combined, Settings{Overwrite: true}))
}

func TestWriteCombined_EmptyReportsKeepSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "all.xlsx")
	combined := Combined{Sets: sampleSets(), Mods: []reports.ModRow{}, Endo: []reports.EndoRow{}, SetsTopN: 4, ModsTopN: 4, EndoTopN: 4}
	require.NoError(t, WriteCombined(path, combined, Settings{Language: "ru", Overwrite: true}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Варфреймы", "Основное оружие", "Моды", "Эндо"}, f.GetSheetList())
}

func TestWriteSetsChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.html")
	require.NoError(t, WriteSetsChart(path, sampleSets(), Settings{Language: "en", TopN: 4}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Ash Prime Set")
	assert.Contains(t, html, "Braton Prime Set")
	assert.Less(t, strings.Index(html, "Ash Prime Set"), strings.Index(html, "Braton Prime Set"))
}

func TestWriteModsChart_NothingToChart(t *testing.T) {
	rows := []reports.ModRow{{URLName: "vitality", Name: "Vitality"}}
	err := WriteModsChart(filepath.Join(t.TempDir(), "mods.html"), rows, Settings{Language: "en"})
	assert.Error(t, err)
}

func TestSetRecords(t *testing.T) {
	records := SetRecords(sampleSets())
	require.Len(t, records, 5)

	assert.Equal(t, RowTypeSet, records[0].RowType)
	assert.Nil(t, records[0].Quantity)
	assert.Equal(t, RowTypePart, records[1].RowType)
	assert.Equal(t, "ash_prime_set", records[1].Set)
	require.NotNil(t, records[4].Quantity)
	assert.Equal(t, 2, *records[4].Quantity)
	assert.Nil(t, records[4].DeltaLive)
}
