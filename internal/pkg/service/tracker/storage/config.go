package storage

import (
	"net/url"
	"strings"

	"github.com/keboola/price-tracker/internal/pkg/service/tracker/model"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const DefaultDSN = "file:price-tracker.db?_busy_timeout=5000"

type Config struct {
	// DSN of the SQLite database, see github.com/mattn/go-sqlite3.
	DSN   string
	Coins []model.Coin
}

func NewConfig() Config {
	return Config{DSN: DefaultDSN, Coins: model.DefaultCoins()}
}

// normalizedDSN enables foreign keys, they are required by the schema migration.
func (c Config) normalizedDSN() (string, error) {
	dsn := strings.TrimSpace(c.DSN)
	if dsn == "" {
		return "", errors.New("storage DSN is not set")
	}

	base, query, _ := strings.Cut(dsn, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", errors.PrefixErrorf(err, `invalid storage DSN "%s"`, dsn)
	}
	if values.Get("_fk") == "" && values.Get("_foreign_keys") == "" {
		values.Set("_fk", "1")
	}
	return base + "?" + values.Encode(), nil
}
