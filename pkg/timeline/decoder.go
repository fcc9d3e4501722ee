package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObservationDecoder turns flat JSON records into observations.
// A record looks like {"date": "2024-01-31", "price": 4123.5, "rainfall": 80.2, ...};
// every numeric field other than the date and price is read as a covariate.
type ObservationDecoder struct {
	aliases map[string]string
}

// NewObservationDecoder creates a decoder with the default field aliases
func NewObservationDecoder() *ObservationDecoder {
	d := &ObservationDecoder{aliases: make(map[string]string)}

	d.RegisterAlias("exchange", "exchange_rate")
	d.RegisterAlias("fx", "exchange_rate")
	d.RegisterAlias("usd_ghs", "exchange_rate")
	d.RegisterAlias("prcp", "rainfall")
	d.RegisterAlias("precipitation", "rainfall")
	d.RegisterAlias("tavg", "temperature")
	d.RegisterAlias("temp", "temperature")

	return d
}

// RegisterAlias maps an input field name onto a canonical covariate name
func (d *ObservationDecoder) RegisterAlias(field, covariate string) {
	d.aliases[strings.ToLower(field)] = covariate
}

// Decode parses one raw JSON record
func (d *ObservationDecoder) Decode(raw []byte) (Observation, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return Observation{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	date, err := parseDate(data)
	if err != nil {
		return Observation{}, err
	}

	price, ok := extractPrice(data)
	if !ok {
		return Observation{}, fmt.Errorf("record %s: missing numeric price", date.Format(time.DateOnly))
	}

	obs := Observation{Date: date, Price: price, Covariates: make(map[string]float64)}
	for field, value := range data {
		key := strings.ToLower(field)
		if isDateField(key) || isPriceField(key) {
			continue
		}
		if key == "covariates" {
			nested, ok := value.(map[string]interface{})
			if !ok {
				return Observation{}, fmt.Errorf("record %s: covariates must be an object", date.Format(time.DateOnly))
			}
			for name, v := range nested {
				if f, ok := v.(float64); ok {
					obs.Covariates[d.canonical(name)] = f
				}
			}
			continue
		}
		if f, ok := value.(float64); ok {
			obs.Covariates[d.canonical(key)] = f
		}
	}

	return obs, nil
}

// DecodeAll parses a batch of records, stopping at the first bad one
func (d *ObservationDecoder) DecodeAll(records [][]byte) ([]Observation, error) {
	out := make([]Observation, 0, len(records))
	for i, raw := range records {
		obs, err := d.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, obs)
	}
	return out, nil
}

func (d *ObservationDecoder) canonical(name string) string {
	if c, ok := d.aliases[strings.ToLower(name)]; ok {
		return c
	}
	return strings.ToLower(name)
}

var dateFields = []string{"date", "timestamp", "ts", "time"}

var priceFields = []string{"price", "close", "value"}

func isDateField(key string) bool {
	for _, f := range dateFields {
		if key == f {
			return true
		}
	}
	return false
}

func isPriceField(key string) bool {
	for _, f := range priceFields {
		if key == f {
			return true
		}
	}
	return false
}

func extractPrice(data map[string]interface{}) (float64, bool) {
	for _, field := range priceFields {
		if value, exists := data[field]; exists {
			if f, ok := value.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func parseDate(data map[string]interface{}) (time.Time, error) {
	for _, field := range dateFields {
		value, exists := data[field]
		if !exists {
			continue
		}
		switch v := value.(type) {
		case string:
			if t, err := time.Parse(time.DateOnly, v); err == nil {
				return t, nil
			}
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC(), nil
			}
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t.UTC(), nil
			}
			return time.Time{}, fmt.Errorf("unparseable date %q", v)
		case float64:
			// Unix timestamp
			return time.Unix(int64(v), 0).UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("record has no date field")
}
