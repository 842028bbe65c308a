package devbackend

import (
	"encoding/json"
	"strings"

	"github.com/user/samarth/pkg/backend"
)

// Canned is one prepared answer. It matches a question when every keyword
// appears in it, case-insensitively.
type Canned struct {
	Keywords []string
	Answer   string
	Sources  []backend.Source
}

func (c Canned) matches(lowered string) bool {
	if len(c.Keywords) == 0 {
		return false
	}
	for _, k := range c.Keywords {
		if !strings.Contains(lowered, strings.ToLower(k)) {
			return false
		}
	}
	return true
}

// queryResponse always carries the sources key, even when empty.
type queryResponse struct {
	Answer   string           `json:"answer"`
	Sources  []backend.Source `json:"sources"`
	Metadata json.RawMessage  `json:"metadata,omitempty"`
}

func (c Canned) response(question string) queryResponse {
	sources := c.Sources
	if sources == nil {
		sources = []backend.Source{}
	}
	meta, _ := json.Marshal(map[string]any{
		"question":           question,
		"datasets_consulted": len(sources),
		"served_by":          "devbackend",
	})
	return queryResponse{
		Answer:   c.Answer,
		Sources:  sources,
		Metadata: meta,
	}
}

// Fallback is returned when no catalog entry matches.
var Fallback = Canned{
	Answer: "I could not find a dataset that answers this question. Try asking about rainfall, crop production, or districts in a specific state.",
}

const (
	rainfallResource   = "88a2e56c-2b5f-4b61-9fb5-2f6b3a5d2a11"
	productionResource = "35be999b-0208-4354-b557-f6ca9a5355de"
)

// DefaultCatalog answers the sample questions offered by the client.
func DefaultCatalog() []Canned {
	rainfall := backend.Source{
		Dataset:    "Sub-Divisional Monthly Rainfall from 1901 to 2017",
		Publisher:  "India Meteorological Department (IMD)",
		URL:        "https://data.gov.in/resource/" + rainfallResource,
		ResourceID: rainfallResource,
	}
	production := backend.Source{
		Dataset:    "District-wise, season-wise crop production statistics",
		Publisher:  "Ministry of Agriculture and Farmers Welfare",
		URL:        "https://data.gov.in/resource/" + productionResource,
		ResourceID: productionResource,
	}

	return []Canned{
		{
			Keywords: []string{"rainfall", "punjab", "haryana"},
			Answer: "Average annual rainfall over the last 5 years:\n" +
				"- Punjab: 612 mm\n" +
				"- Haryana: 547 mm\n" +
				"Punjab received about 12% more rainfall than Haryana over the period.",
			Sources: []backend.Source{rainfall},
		},
		{
			Keywords: []string{"district", "wheat"},
			Answer:   "Ludhiana recorded the highest wheat production in Punjab in 2023, at roughly 1.9 million tonnes.",
			Sources:  []backend.Source{production},
		},
		{
			Keywords: []string{"top", "crops", "maharashtra"},
			Answer: "Top 3 crops produced in Maharashtra by volume:\n" +
				"1. Sugarcane\n" +
				"2. Soyabean\n" +
				"3. Cotton (lint)",
			Sources: []backend.Source{production},
		},
		{
			Keywords: []string{"rainfall"},
			Answer:   "Rainfall figures are available by meteorological subdivision. Name one or two states to compare.",
			Sources:  []backend.Source{rainfall},
		},
	}
}
