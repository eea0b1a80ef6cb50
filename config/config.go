package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`

		// Origins allowed by the CORS middleware
		AllowedOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	}

	Geo struct {
		BaseURL string        `env:"GEO_API_URL" envDefault:"https://geo.api.gouv.fr/communes"`
		Timeout time.Duration `env:"GEO_API_TIMEOUT" envDefault:"5s"`
	}

	DVF struct {
		// Mirrors of the records endpoint, tried in order
		BaseURLs []string `env:"DVF_API_URLS" envSeparator:"," envDefault:"https://data.economie.gouv.fr/api/explore/v2.1/catalog/datasets/dvf/records,https://api.data.gouv.fr/api/explore/v2.1/catalog/datasets/dvf/records,https://opendata.data.gouv.fr/api/explore/v2.1/catalog/datasets/dvf/records"`
		Timeout  time.Duration `env:"DVF_API_TIMEOUT" envDefault:"10s"`

		// Lookback windows in months
		LookbackMonths int `env:"DVF_LOOKBACK_MONTHS" envDefault:"24"`
		WidenedMonths  int `env:"DVF_WIDENED_MONTHS" envDefault:"36"`

		// Minimum number of plausible records before a fetch strategy is accepted
		MinSamples int `env:"DVF_MIN_SAMPLES" envDefault:"3"`
		PageSize   int `env:"DVF_PAGE_SIZE" envDefault:"100"`

		// Upper bound on the lookups behind one estimate
		EstimateTimeout time.Duration `env:"ESTIMATE_TIMEOUT" envDefault:"90s"`

		// Optional read-only SQLite file with pre-aggregated prices
		AggregatePath string `env:"DVF_AGGREGATE_PATH"`
	}

	Cache struct {
		// Empty disables the disk mirror
		Dir string        `env:"CACHE_DIR" envDefault:"data/cache"`
		TTL time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	}

	Database struct {
		Path string `env:"DB_PATH" envDefault:"data/rendimo.db"`
	}

	// Optional JSON file merged over the built-in reference prices
	ReferencePath string `env:"REFERENCE_PRICES_PATH"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
