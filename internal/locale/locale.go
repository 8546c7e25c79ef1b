// Package locale holds the translated text of exported reports and CLI
// messages. Lookups fall back to English, then to the key itself.
package locale

import (
	"fmt"
	"strconv"
	"strings"
)

// Default is the language used when a translation is missing.
const Default = "en"

// Key identifies a translated string.
type Key string

const (
	OpenLabel      Key = "open_label"
	EmptySheet     Key = "empty_sheet"
	SheetTitle     Key = "sheet_title"
	EndoSheetName  Key = "endo_sheet_name"
	ModsSheetName  Key = "mods_sheet_name"
	Saved          Key = "saved"
	NoResults      Key = "no_results"
	ProgressFormat Key = "progress_format"
	ProgressDone   Key = "progress_done"
	RemainingLess  Key = "remaining_less"
	RemainingSecs  Key = "remaining_seconds"
	TopNPositive   Key = "top_n_positive"
	StageScan      Key = "stage_scan"
	StageCompute   Key = "stage_compute"
	ChartSets      Key = "chart_sets"
	ChartMods      Key = "chart_mods"
	ChartDelta     Key = "chart_delta"
	ChartPlatEndo  Key = "chart_plat_per_endo"
)

var messages = map[string]map[Key]string{
	"en": {
		OpenLabel:      "Open",
		EmptySheet:     "No data",
		SheetTitle:     "{title}: Warframe Market Profit Overview",
		EndoSheetName:  "endo",
		ModsSheetName:  "mods",
		Saved:          "Saved: {out}",
		NoResults:      "Nothing suitable was found.",
		ProgressFormat: "[{label}] {done}/{total} • Remaining {remaining}",
		ProgressDone:   "[{label}] {done}/{total} • done",
		RemainingLess:  "less than a second",
		RemainingSecs:  "{seconds} s",
		TopNPositive:   "live_price_top_n must be positive",
		StageScan:      "Scanning items",
		StageCompute:   "Calculating prices",
		ChartSets:      "Set price minus parts (top-{n})",
		ChartMods:      "Platinum per Endo",
		ChartDelta:     "Difference",
		ChartPlatEndo:  "Platinum per Endo",
	},
	"ru": {
		OpenLabel:      "Открыть",
		EmptySheet:     "Нет данных",
		SheetTitle:     "{title}: аналитика Warframe Market",
		EndoSheetName:  "Эндо",
		ModsSheetName:  "Моды",
		Saved:          "Сохранено: {out}",
		NoResults:      "Ничего подходящего не найдено.",
		ProgressFormat: "[{label}] {done}/{total} • Осталось {remaining}",
		ProgressDone:   "[{label}] {done}/{total} • готово",
		RemainingLess:  "меньше секунды",
		RemainingSecs:  "{seconds} с",
		TopNPositive:   "live_price_top_n должно быть положительным",
		StageScan:      "Поиск предметов",
		StageCompute:   "Расчёт цен",
		ChartSets:      "Цена комплекта минус детали (топ-{n})",
		ChartMods:      "Платина за Эндо",
		ChartDelta:     "Разница",
		ChartPlatEndo:  "Платина за Эндо",
	},
}

var setsHeaders = map[string][]string{
	"en": {
		"Open",
		"Warframe Market ID",
		"Item name",
		"Quantity",
		"24h volume",
		"Average price (24h)",
		"Live price (top-{n})",
		"Deviation",
		"Sum of parts (24h)",
		"Sum of parts (top-{n})",
		"Difference (24h)",
		"Difference % (24h)",
		"Difference (top-{n})",
		"Difference % (top-{n})",
	},
	"ru": {
		"Открыть",
		"Warframe Market ID",
		"Название в игре",
		"Количество",
		"Объём продаж 24 часа",
		"Средняя цена (24ч)",
		"Реальная цена (топ-{n})",
		"Погрешность",
		"Сумма частей (24ч)",
		"Сумма частей (топ-{n})",
		"Разница (24ч)",
		"Разница % (24ч)",
		"Разница (топ-{n})",
		"Разница % (топ-{n})",
	},
}

var setsNotes = map[string][]string{
	"en": {
		"Filter the Warframe Market ID column by \"_set\" to jump between sets.",
		"The average price (24h) comes from Warframe Market statistics for the last 24 hours.",
		"The live price averages the top-{n} current sell orders; the deviation is half of their spread.",
		"Sum of parts multiplies each part price by the quantity the set needs.",
		"Difference is set price minus sum of parts. Positive values mean the set sells for more than its parts.",
		"Difference % is the difference divided by the sum of parts.",
	},
	"ru": {
		"Отфильтруйте столбец Warframe Market ID по \"_set\", чтобы переходить между комплектами.",
		"Средняя цена (24ч) берётся из статистики Warframe Market за последние 24 часа.",
		"Реальная цена усредняется по топ-{n} актуальным ордерам; погрешность равна половине разброса.",
		"Сумма частей учитывает количество каждой детали в комплекте.",
		"Разница равна цене комплекта минус сумма частей. Положительное значение: комплект дороже деталей.",
		"Разница % равна разнице, делённой на сумму частей.",
	},
}

var modsHeaders = map[string][]string{
	"en": {
		"Open",
		"Warframe Market ID",
		"Item name",
		"Rarity",
		"Max rank",
		"Endo to max",
		"Unranked min",
		"Unranked price (top-{n})",
		"Unranked deviation",
		"Unranked orders",
		"Maxed min",
		"Maxed price (top-{n})",
		"Maxed deviation",
		"Maxed orders",
		"Price difference",
		"Price difference %",
		"Endo per platinum",
		"Platinum per Endo",
		"24h volume",
	},
	"ru": {
		"Открыть",
		"Warframe Market ID",
		"Название в игре",
		"Редкость",
		"Макс. ранг",
		"Эндо до максимума",
		"Мин. цена без ранга",
		"Цена без ранга (топ-{n})",
		"Погрешность без ранга",
		"Ордера без ранга",
		"Мин. цена макс. ранга",
		"Цена макс. ранга (топ-{n})",
		"Погрешность макс. ранга",
		"Ордера макс. ранга",
		"Разница цен",
		"Разница цен %",
		"Эндо за платину",
		"Платина за Эндо",
		"Объём продаж 24 часа",
	},
}

var endoHeaders = map[string][]string{
	"en": {
		"Open",
		"Warframe Market ID",
		"Item name",
		"Rarity",
		"Rank",
		"Mastery",
		"Endo",
		"Live price (top-{n})",
		"Min price",
		"Deviation",
		"Orders",
		"Endo per platinum",
		"24h volume",
	},
	"ru": {
		"Открыть",
		"Warframe Market ID",
		"Название в игре",
		"Редкость",
		"Ранг",
		"Мастерство",
		"Эндо",
		"Реальная цена (топ-{n})",
		"Мин. цена",
		"Погрешность",
		"Ордера",
		"Эндо за платину",
		"Объём продаж 24 часа",
	},
}

var categoryTitles = map[string]map[string]string{
	"en": {
		"warframes":  "Warframes",
		"primary":    "Primary weapons",
		"secondary":  "Secondary weapons",
		"melee":      "Melee weapons",
		"archwing":   "Archwing & Space",
		"companions": "Companions",
		"other":      "Other",
	},
	"ru": {
		"warframes":  "Варфреймы",
		"primary":    "Основное оружие",
		"secondary":  "Вторичное оружие",
		"melee":      "Ближнее оружие",
		"archwing":   "Арч и космос",
		"companions": "Компаньоны",
		"other":      "Прочее",
	},
}

var rarityLabels = map[string]map[string]string{
	"en": {
		"common":    "Common",
		"uncommon":  "Uncommon",
		"rare":      "Rare",
		"legendary": "Legendary",
		"peculiar":  "Peculiar",
		"riven":     "Riven",
	},
	"ru": {
		"common":    "Обычный",
		"uncommon":  "Необычный",
		"rare":      "Редкий",
		"legendary": "Легендарный",
		"peculiar":  "Особый",
		"riven":     "Разлом",
	},
}

// Languages lists the supported UI languages.
func Languages() []string {
	return []string{"en", "ru"}
}

// Supported reports whether lang has translations.
func Supported(lang string) bool {
	_, ok := messages[normalize(lang)]
	return ok
}

// Text returns the translation of key in lang.
func Text(lang string, key Key) string {
	if s, ok := messages[normalize(lang)][key]; ok {
		return s
	}
	if s, ok := messages[Default][key]; ok {
		return s
	}
	return string(key)
}

// Format returns the translation of key with {name} placeholders replaced
// from args, given as name/value pairs.
func Format(lang string, key Key, args ...any) string {
	return Expand(Text(lang, key), args...)
}

// Expand replaces {name} placeholders in s. args alternate name and value.
func Expand(s string, args ...any) string {
	if len(args) < 2 {
		return s
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		pairs = append(pairs, "{"+fmt.Sprint(args[i])+"}", fmt.Sprint(args[i+1]))
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// SetsHeaders returns the column headers of a sets sheet for a top-n live price.
func SetsHeaders(lang string, n int) []string {
	return expandAll(pick(setsHeaders, lang), n)
}

// SetsNotes returns the explanation block printed under a sets sheet.
func SetsNotes(lang string, n int) []string {
	return expandAll(pick(setsNotes, lang), n)
}

// ModsHeaders returns the column headers of the mods sheet.
func ModsHeaders(lang string, n int) []string {
	return expandAll(pick(modsHeaders, lang), n)
}

// EndoHeaders returns the column headers of the Endo sheet.
func EndoHeaders(lang string, n int) []string {
	return expandAll(pick(endoHeaders, lang), n)
}

// CategoryTitle returns the display title of a set category.
func CategoryTitle(lang, category string) string {
	return label(categoryTitles, lang, category)
}

// RarityLabel returns the display name of a mod rarity.
func RarityLabel(lang, rarity string) string {
	return label(rarityLabels, lang, strings.ToLower(rarity))
}

func label(table map[string]map[string]string, lang, key string) string {
	if s, ok := table[normalize(lang)][key]; ok {
		return s
	}
	if s, ok := table[Default][key]; ok {
		return s
	}
	return key
}

func pick(table map[string][]string, lang string) []string {
	if list, ok := table[normalize(lang)]; ok {
		return list
	}
	return table[Default]
}

func expandAll(list []string, n int) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = Expand(s, "n", strconv.Itoa(n))
	}
	return out
}

// normalize maps "ru_RU" or "RU" to "ru".
func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "_-"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
