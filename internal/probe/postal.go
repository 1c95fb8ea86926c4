package probe

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// The columns of a postal case file.
const (
	ColumnCountry    = "Country"
	ColumnPostalCode = "Postal Code"
	ColumnPlaceName  = "Place Name"
)

// PlaceNameQuery selects the place names of a postal code lookup.
const PlaceNameQuery = "//places/*/*[name()='place name']"

// PostalCase is a postal code lookup and a place it has to return.
type PostalCase struct {
	Country    string
	PostalCode string
	PlaceName  string
}

// Spec turns the case into a probe of /{country}/{postal code} that requires
// the place name among the returned places.
func (pc PostalCase) Spec() Spec {
	country := strings.ToLower(pc.Country)
	return Spec{
		Name:   fmt.Sprintf("postal code %s %s", country, pc.PostalCode),
		Path:   fmt.Sprintf("/%s/%s", country, pc.PostalCode),
		Checks: []BodyCheck{{Query: PlaceNameQuery, Equals: pc.PlaceName}},
	}
}

// ReadPostalCases reads cases from csv with a header row naming the columns
// Country, Postal Code and Place Name in any order.
func ReadPostalCases(r io.Reader) ([]PostalCase, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("postal cases: missing header")
		}
		return nil, fmt.Errorf("postal cases: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{ColumnCountry, ColumnPostalCode, ColumnPlaceName} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("postal cases: missing column %q", col)
		}
	}
	var cases []PostalCase
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("postal cases: %w", err)
		}
		cases = append(cases, PostalCase{
			Country:    strings.TrimSpace(rec[idx[ColumnCountry]]),
			PostalCode: strings.TrimSpace(rec[idx[ColumnPostalCode]]),
			PlaceName:  strings.TrimSpace(rec[idx[ColumnPlaceName]]),
		})
	}
	return cases, nil
}

// LoadPostalCases reads the cases of a csv file.
func LoadPostalCases(path string) ([]PostalCase, error) {
	if filepath.Ext(path) != ".csv" {
		return nil, fmt.Errorf("the file %s is not a csv file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPostalCases(f)
}
