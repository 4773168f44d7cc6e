package crawler

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"courtdata-backend/lib/scrapers/odyssey"
)

// Registry maps counties to their portal profiles, loaded from a static
// CSV with a county,portal,version,notes header row.
type Registry struct {
	profiles map[string]odyssey.PortalProfile
}

func LoadRegistry(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open county registry: %w", err)
	}
	defer f.Close()
	return ReadRegistry(f)
}

func ReadRegistry(r io.Reader) (*Registry, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read county registry header: %w", err)
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"county", "portal", "version", "notes"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("county registry is missing the %q column", required)
		}
	}

	profiles := map[string]odyssey.PortalProfile{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read county registry row: %w", err)
		}

		county := strings.TrimSpace(row[columns["county"]])
		if county == "" {
			continue
		}

		baseURL := row[columns["portal"]]
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}

		// versions read like "2003.5"; only the year matters
		rawVersion := row[columns["version"]]
		year, _, _ := strings.Cut(rawVersion, ".")
		version, err := strconv.Atoi(strings.TrimSpace(year))
		if err != nil {
			return nil, fmt.Errorf("county %s has a malformed portal version %q", county, rawVersion)
		}

		profiles[strings.ToLower(county)] = odyssey.PortalProfile{
			County:  county,
			BaseURL: baseURL,
			Version: version,
			Notes:   row[columns["notes"]],
		}
	}

	return &Registry{profiles: profiles}, nil
}

// Lookup is case-insensitive. An unknown county is terminal: without a
// profile there is nothing to crawl.
func (r *Registry) Lookup(county string) (odyssey.PortalProfile, error) {
	profile, ok := r.profiles[strings.ToLower(county)]
	if !ok {
		return odyssey.PortalProfile{}, fmt.Errorf(
			"county %q is not present in the county registry", county,
		)
	}
	return profile, nil
}

func (r *Registry) Counties() []string {
	counties := make([]string, 0, len(r.profiles))
	for _, profile := range r.profiles {
		counties = append(counties, profile.County)
	}
	return counties
}
