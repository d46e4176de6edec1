package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/playmixer/walletledger/internal/core/money"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUnavailable     = errors.New("catalog unavailable")
)

const (
	SourceFile = "file"
	SourceHTTP = "http"
)

type Config struct {
	Source   string        `env:"CATALOG_SOURCE" envDefault:"file"`
	File     string        `env:"CATALOG_FILE" envDefault:"catalog.yaml"`
	Address  string        `env:"CATALOG_ADDRESS" envDefault:"http://localhost:8081"`
	Timeout  time.Duration `env:"CATALOG_TIMEOUT" envDefault:"3s"`
	CacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`
}

type Product struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	SellerID string     `json:"seller_id"`
	Price    money.Pair `json:"price"`
}

type Catalog interface {
	Product(ctx context.Context, productID string) (Product, error)
}

// New builds the configured catalog source. When rdb is not nil products
// are cached in redis.
func New(cfg *Config, rdb redis.UniversalClient, log *zap.Logger) (Catalog, error) {
	var source Catalog
	switch cfg.Source {
	case SourceFile, "":
		static, err := LoadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed load catalog file: %w", err)
		}
		source = static
	case SourceHTTP:
		source = NewHTTP(cfg.Address, HTTPTimeout(cfg.Timeout), HTTPLogger(log))
	default:
		return nil, fmt.Errorf("unknown catalog source `%s`", cfg.Source)
	}

	if rdb != nil {
		source = NewCached(source, rdb, cfg.CacheTTL, CacheLogger(log))
	}
	return source, nil
}

// Static is a catalog held in memory.
type Static map[string]Product

func (s Static) Product(_ context.Context, productID string) (Product, error) {
	p, ok := s[productID]
	if !ok {
		return Product{}, fmt.Errorf("%w: `%s`", ErrProductNotFound, productID)
	}
	return p, nil
}

type fileProduct struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	SellerID string `yaml:"seller_id"`
	Price    struct {
		USD   string `yaml:"usd"`
		Local string `yaml:"local"`
	} `yaml:"price"`
}

type file struct {
	Products []fileProduct `yaml:"products"`
}

// LoadFile reads a YAML catalog:
//
//	products:
//	  - id: course-1
//	    title: Trading course
//	    seller_id: seller-1
//	    price: {usd: "60.00", local: "4999"}
func LoadFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed read `%s`: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Static, error) {
	f := file{}
	err := yaml.Unmarshal(data, &f)
	if err != nil {
		return nil, fmt.Errorf("failed parse catalog: %w", err)
	}

	static := make(Static, len(f.Products))
	for _, fp := range f.Products {
		if fp.ID == "" {
			return nil, errors.New("catalog product without id")
		}
		p := Product{ID: fp.ID, Title: fp.Title, SellerID: fp.SellerID}
		if fp.Price.USD != "" {
			if p.Price.USD, err = money.Parse(fp.Price.USD, money.USDT); err != nil {
				return nil, fmt.Errorf("product `%s` usd price: %w", fp.ID, err)
			}
		}
		if fp.Price.Local != "" {
			if p.Price.Local, err = money.Parse(fp.Price.Local, money.INR); err != nil {
				return nil, fmt.Errorf("product `%s` local price: %w", fp.ID, err)
			}
		}
		static[p.ID] = p
	}
	return static, nil
}
