package market

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Item is an entry of the public item listing.
type Item struct {
	ID       string `json:"id"`
	URLName  string `json:"url_name"`
	ItemName string `json:"item_name"`
	Thumb    string `json:"thumb,omitempty"`
}

// SetComponent is one element of an item detail's items_in_set array.
// A plain item has a single component describing itself.
type SetComponent struct {
	ID             string
	URLName        string
	SetRoot        bool
	Tags           []string
	Rarity         string
	ModMaxRank     *int
	MasteryLevel   *int
	QuantityForSet int
	ItemName       string

	// Names holds item_name per language block ("en", "ru", ...).
	Names map[string]string
}

type setComponentFields struct {
	ID             string   `json:"id"`
	URLName        string   `json:"url_name"`
	SetRoot        bool     `json:"set_root"`
	Tags           []string `json:"tags"`
	Rarity         string   `json:"rarity"`
	ModMaxRank     *int     `json:"mod_max_rank"`
	MasteryLevel   *int     `json:"mastery_level"`
	QuantityForSet *int     `json:"quantity_for_set"`
	ItemName       string   `json:"item_name"`
}

// UnmarshalJSON decodes the known fields and collects every per-language
// block that carries an item_name.
func (c *SetComponent) UnmarshalJSON(data []byte) error {
	var fields setComponentFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	names := make(map[string]string)
	for key, value := range raw {
		if len(value) == 0 || value[0] != '{' {
			continue
		}
		var block struct {
			ItemName string `json:"item_name"`
		}
		if err := json.Unmarshal(value, &block); err == nil && block.ItemName != "" {
			names[key] = block.ItemName
		}
	}

	quantity := 1
	if fields.QuantityForSet != nil && *fields.QuantityForSet > 0 {
		quantity = *fields.QuantityForSet
	}

	*c = SetComponent{
		ID:             fields.ID,
		URLName:        fields.URLName,
		SetRoot:        fields.SetRoot,
		Tags:           fields.Tags,
		Rarity:         strings.ToLower(fields.Rarity),
		ModMaxRank:     fields.ModMaxRank,
		MasteryLevel:   fields.MasteryLevel,
		QuantityForSet: quantity,
		ItemName:       fields.ItemName,
		Names:          names,
	}
	return nil
}

// Name returns the display name for language, falling back to English and
// then to the url name.
func (c SetComponent) Name(language string) string {
	if c.ItemName != "" {
		return c.ItemName
	}
	if name := c.Names[language]; name != "" {
		return name
	}
	if name := c.Names["en"]; name != "" {
		return name
	}
	return c.URLName
}

// HasTag reports whether the component carries tag (case-insensitive).
func (c SetComponent) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ItemDetail is the decoded item detail response.
type ItemDetail struct {
	Components []SetComponent
}

// Root returns the component flagged as set root. For a non-set item the
// component matching urlName (or the only component) is returned.
func (d ItemDetail) Root(urlName string) (SetComponent, bool) {
	for _, c := range d.Components {
		if c.SetRoot {
			return c, true
		}
	}
	for _, c := range d.Components {
		if c.URLName == urlName {
			return c, true
		}
	}
	if len(d.Components) == 1 {
		return d.Components[0], true
	}
	return SetComponent{}, false
}

// Parts returns the non-root components in response order.
func (d ItemDetail) Parts() []SetComponent {
	parts := make([]SetComponent, 0, len(d.Components))
	for _, c := range d.Components {
		if !c.SetRoot {
			parts = append(parts, c)
		}
	}
	return parts
}

// StatisticsEntry is one closed-trade statistics bucket.
type StatisticsEntry struct {
	Datetime time.Time `json:"datetime"`
	Volume   int       `json:"volume"`
	MinPrice *float64  `json:"min_price,omitempty"`
	MaxPrice *float64  `json:"max_price,omitempty"`
	AvgPrice *float64  `json:"avg_price,omitempty"`
	WAPrice  *float64  `json:"wa_price,omitempty"`
	Median   *float64  `json:"median,omitempty"`
	ModRank  *int      `json:"mod_rank,omitempty"`
}

// Price returns the weighted average price, falling back to average and median.
func (e StatisticsEntry) Price() *float64 {
	switch {
	case e.WAPrice != nil:
		return e.WAPrice
	case e.AvgPrice != nil:
		return e.AvgPrice
	default:
		return e.Median
	}
}

// Seller is the order owner.
type Seller struct {
	IngameName string `json:"ingame_name"`
	Status     string `json:"status"`
}

// Online reports whether the seller is online or in game.
func (s Seller) Online() bool {
	return s.Status == "ingame" || s.Status == "online"
}

// Order is a live market order.
type Order struct {
	ID        string  `json:"id"`
	Platinum  float64 `json:"platinum"`
	Quantity  int     `json:"quantity"`
	OrderType string  `json:"order_type"`
	Visible   *bool   `json:"visible,omitempty"`
	ModRank   *int    `json:"mod_rank,omitempty"`
	User      Seller  `json:"user"`
}

// IsVisible treats a missing visibility flag as visible.
func (o Order) IsVisible() bool {
	return o.Visible == nil || *o.Visible
}

// Rank returns the mod rank, with an absent rank meaning unranked.
func (o Order) Rank() int {
	if o.ModRank == nil {
		return 0
	}
	return *o.ModRank
}

// response envelopes

type itemsResponse struct {
	Payload struct {
		Items json.RawMessage `json:"items"`
	} `json:"payload"`
}

type itemDetailResponse struct {
	Payload struct {
		Item struct {
			ItemsInSet json.RawMessage `json:"items_in_set"`
		} `json:"item"`
	} `json:"payload"`
}

type statisticsResponse struct {
	Payload struct {
		StatisticsClosed map[string][]StatisticsEntry `json:"statistics_closed"`
	} `json:"payload"`
}

type ordersResponse struct {
	Payload struct {
		Orders []Order `json:"orders"`
	} `json:"payload"`
}

// decodeItemList accepts both listing shapes: a flat array or a
// language -> array map. The map form picks language, then "en", then the
// first language in sorted order.
func decodeItemList(raw json.RawMessage, language string) ([]Item, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []Item{}, nil
	}

	var flat []Item
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var byLanguage map[string][]Item
	if err := json.Unmarshal(raw, &byLanguage); err != nil {
		return nil, fmt.Errorf("unrecognized items payload: %w", err)
	}

	if items, ok := byLanguage[language]; ok {
		return items, nil
	}
	if items, ok := byLanguage["en"]; ok {
		return items, nil
	}

	keys := make([]string, 0, len(byLanguage))
	for k := range byLanguage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return []Item{}, nil
	}
	return byLanguage[keys[0]], nil
}
