// Package seed loads fixture data into an empty store at startup.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

// Fixture is the YAML document accepted by Load.
type Fixture struct {
	Categories []CategoryFixture `yaml:"categories"`
	Items      []ItemFixture     `yaml:"items"`
	Accounts   []AccountFixture  `yaml:"accounts"`
}

// CategoryFixture describes one category.
type CategoryFixture struct {
	Name string `yaml:"name"`
}

// ItemFixture references its category by name.
type ItemFixture struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	Quantity    int64  `yaml:"quantity"`
}

// AccountFixture carries a plain-text password that is hashed before it is stored.
type AccountFixture struct {
	Role     domain.Role `yaml:"role"`
	Login    string      `yaml:"login"`
	Password string      `yaml:"password"`
	Address  string      `yaml:"address"`
	Phone    string      `yaml:"phone"`
}

// Hasher hashes plain-text passwords.
type Hasher interface {
	Hash(password string) (string, error)
}

// Result counts the records written by Apply.
type Result struct {
	Skipped    bool
	Categories int
	Items      int
	Accounts   int
}

// LoadFile reads and validates a fixture from path.
func LoadFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer file.Close()
	return Load(file)
}

// Load decodes and validates a fixture. Unknown keys are rejected.
func Load(r io.Reader) (Fixture, error) {
	var fixture Fixture
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("seed: decode fixture: %w", err)
	}
	if err := fixture.validate(); err != nil {
		return Fixture{}, err
	}
	return fixture, nil
}

func (f Fixture) validate() error {
	var problems []string
	categories := make(map[string]struct{}, len(f.Categories))
	for i, category := range f.Categories {
		name := strings.TrimSpace(category.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("categories[%d]: name is required", i))
			continue
		}
		key := textutil.FoldKey(name)
		if _, dup := categories[key]; dup {
			problems = append(problems, fmt.Sprintf("categories[%d]: duplicate name %q", i, name))
		}
		categories[key] = struct{}{}
	}
	items := make(map[string]struct{}, len(f.Items))
	for i, item := range f.Items {
		name := strings.TrimSpace(item.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("items[%d]: name is required", i))
		case item.Price < 0 || item.Quantity < 0:
			problems = append(problems, fmt.Sprintf("items[%d]: price and quantity must not be negative", i))
		}
		if _, ok := categories[textutil.FoldKey(item.Category)]; !ok {
			problems = append(problems, fmt.Sprintf("items[%d]: unknown category %q", i, item.Category))
		}
		key := textutil.FoldKey(name)
		if _, dup := items[key]; dup && name != "" {
			problems = append(problems, fmt.Sprintf("items[%d]: duplicate name %q", i, name))
		}
		items[key] = struct{}{}
	}
	for i, account := range f.Accounts {
		switch account.Role {
		case domain.RoleUser, domain.RoleWorker, domain.RoleAdmin:
		default:
			problems = append(problems, fmt.Sprintf("accounts[%d]: unknown role %q", i, account.Role))
		}
		if strings.TrimSpace(account.Login) == "" || account.Password == "" {
			problems = append(problems, fmt.Sprintf("accounts[%d]: login and password are required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("seed: invalid fixture: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Apply writes the fixture in one unit of work. Stores that already hold categories are left
// untouched and reported as skipped.
func Apply(ctx context.Context, store repositories.Registry, hasher Hasher, fixture Fixture, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	existing, err := store.Categories().List(ctx)
	if err != nil && !repositories.IsNotFound(err) {
		return Result{}, fmt.Errorf("seed: inspect store: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("seed skipped; store is not empty", zap.Int("categories", len(existing)))
		return Result{Skipped: true}, nil
	}

	var result Result
	err = store.RunInTx(ctx, func(ctx context.Context) error {
		result = Result{}
		categoryIDs := make(map[string]int64, len(fixture.Categories))
		for _, category := range fixture.Categories {
			created, err := store.Categories().Insert(ctx, domain.Category{Name: strings.TrimSpace(category.Name)})
			if err != nil {
				return fmt.Errorf("seed: insert category %q: %w", category.Name, err)
			}
			categoryIDs[textutil.FoldKey(created.Name)] = created.ID
			result.Categories++
		}
		for _, item := range fixture.Items {
			_, err := store.Items().Insert(ctx, domain.Item{
				CategoryID:  categoryIDs[textutil.FoldKey(item.Category)],
				Name:        strings.TrimSpace(item.Name),
				Description: strings.TrimSpace(item.Description),
				Price:       item.Price,
				Quantity:    item.Quantity,
			})
			if err != nil {
				return fmt.Errorf("seed: insert item %q: %w", item.Name, err)
			}
			result.Items++
		}
		for _, account := range fixture.Accounts {
			hash, err := hasher.Hash(account.Password)
			if err != nil {
				return fmt.Errorf("seed: hash password for %q: %w", account.Login, err)
			}
			_, err = store.Accounts().Insert(ctx, domain.Account{
				Role:         account.Role,
				Login:        strings.TrimSpace(account.Login),
				PasswordHash: hash,
				Address:      account.Address,
				Phone:        account.Phone,
			})
			if err != nil {
				return fmt.Errorf("seed: insert %s account %q: %w", account.Role, account.Login, err)
			}
			result.Accounts++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	logger.Info("seed applied",
		zap.Int("categories", result.Categories),
		zap.Int("items", result.Items),
		zap.Int("accounts", result.Accounts),
	)
	return result, nil
}
