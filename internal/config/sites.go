package config

import (
	"fmt"
	"net/url"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/viper"

	"github.com/user/post-scraper/internal/domain"
)

// DefaultSites is used when no sites file is configured.
func DefaultSites() []*domain.SiteProfile {
	return []*domain.SiteProfile{
		{
			BaseURL:       "https://formulanews.ge",
			ListingPath:   "/Category/all",
			LinkSelector:  "div.main__new__slider__desc > a",
			TitleSelector: "h1.news__inner__desc__title",
			BodySelector:  "section.article-content > p",
		},
	}
}

// LoadSites reads site profiles from a YAML or JSON file holding a top-level
// "sites" list. An empty path yields DefaultSites.
func LoadSites(path string) ([]*domain.SiteProfile, error) {
	if path == "" {
		return DefaultSites(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sites file %s: %w", path, err)
	}

	var sites []*domain.SiteProfile
	if err := v.UnmarshalKey("sites", &sites); err != nil {
		return nil, fmt.Errorf("decode sites file %s: %w", path, err)
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("sites file %s: %w", path, domain.ErrNoSites)
	}

	for i, site := range sites {
		if err := ValidateSite(site); err != nil {
			return nil, fmt.Errorf("sites file %s: site %d: %w", path, i, err)
		}
	}
	return sites, nil
}

// ValidateSite checks that the base URL is absolute and that every selector
// compiles. goquery treats an invalid selector as matching nothing, so a
// typo would otherwise only show up as an empty result.
func ValidateSite(site *domain.SiteProfile) error {
	u, err := url.Parse(site.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not absolute", site.BaseURL)
	}

	selectors := []struct{ name, value string }{
		{"link_selector", site.LinkSelector},
		{"title_selector", site.TitleSelector},
		{"body_selector", site.BodySelector},
	}
	for _, s := range selectors {
		if _, err := cascadia.Compile(s.value); err != nil {
			return fmt.Errorf("%s %q: %w", s.name, s.value, err)
		}
	}
	return nil
}
