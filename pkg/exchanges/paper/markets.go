package paper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Market seeds one simulated instrument. Prices are decimal strings.
type Market struct {
	Name         string `yaml:"name"`
	MarkPrice    string `yaml:"mark_price"`
	IndexPrice   string `yaml:"index_price"`
	OpenInterest string `yaml:"open_interest"`
	FundingRate  string `yaml:"funding_rate"`
	MaxLeverage  int    `yaml:"max_leverage"`
}

type marketsFile struct {
	Markets []Market `yaml:"markets"`
}

// LoadMarkets reads a YAML file of the form:
//
//	markets:
//	  - name: BTC
//	    mark_price: "64000"
func LoadMarkets(path string) ([]Market, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets file: %w", err)
	}
	var f marketsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse markets file: %w", err)
	}
	if len(f.Markets) == 0 {
		return nil, fmt.Errorf("markets file %s defines no markets", path)
	}
	return f.Markets, nil
}

// DefaultMarkets is used when no markets file is configured.
func DefaultMarkets() []Market {
	return []Market{
		{Name: "BTC", MarkPrice: "64000", IndexPrice: "63995", OpenInterest: "1500", FundingRate: "0.0000125", MaxLeverage: 50},
		{Name: "ETH", MarkPrice: "2500", IndexPrice: "2499.5", OpenInterest: "90000", FundingRate: "0.00001", MaxLeverage: 25},
		{Name: "SOL", MarkPrice: "150", IndexPrice: "149.9", OpenInterest: "400000", FundingRate: "-0.000005", MaxLeverage: 20},
	}
}
