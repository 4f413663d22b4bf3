package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories/memory"
)

const sampleFixture = `
categories:
  - name: Kitchen
  - name: Garden
items:
  - name: Mug
    category: kitchen
    description: Stoneware mug
    price: 1200
    quantity: 5
  - name: Spade
    category: Garden
    description: Steel spade
    price: 2100
    quantity: 0
accounts:
  - role: user
    login: ann@example.com
    password: hunter2
    address: 1 Main St
  - role: admin
    login: root
    password: toor
`

type prefixHasher struct{ err error }

func (h prefixHasher) Hash(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + password, nil
}

func TestLoadValidFixture(t *testing.T) {
	fixture, err := Load(strings.NewReader(sampleFixture))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(fixture.Categories) != 2 || len(fixture.Items) != 2 || len(fixture.Accounts) != 2 {
		t.Fatalf("unexpected fixture %+v", fixture)
	}
	if fixture.Accounts[1].Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", fixture.Accounts[1].Role)
	}
}

func TestLoadRejectsInvalidFixtures(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "categories:\n  - name: A\n    colour: red\n",
		"unknown category":   "categories:\n  - name: A\nitems:\n  - name: X\n    category: B\n",
		"duplicate item":     "categories:\n  - name: A\nitems:\n  - name: X\n    category: A\n  - name: x\n    category: A\n",
		"negative price":     "categories:\n  - name: A\nitems:\n  - name: X\n    category: A\n    price: -1\n",
		"unknown role":       "accounts:\n  - role: owner\n    login: a\n    password: b\n",
		"missing password":   "accounts:\n  - role: user\n    login: a\n",
		"duplicate category": "categories:\n  - name: A\n  - name: a\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	empty, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("expected empty document to load, got %v", err)
	}
	if len(empty.Categories) != 0 {
		t.Fatalf("expected empty fixture, got %+v", empty)
	}
}

func TestApplySeedsEmptyStoreOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	fixture, err := Load(strings.NewReader(sampleFixture))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	result, err := Apply(ctx, store, prefixHasher{}, fixture, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Skipped || result.Categories != 2 || result.Items != 2 || result.Accounts != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	mug, err := store.Items().FindByName(ctx, "MUG")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	kitchen, err := store.Categories().FindByName(ctx, "Kitchen")
	if err != nil {
		t.Fatalf("FindByName category: %v", err)
	}
	if mug.CategoryID != kitchen.ID || mug.Quantity != 5 {
		t.Fatalf("unexpected item %+v", mug)
	}
	ann, err := store.Accounts().FindByLogin(ctx, domain.RoleUser, "ann@example.com")
	if err != nil {
		t.Fatalf("FindByLogin: %v", err)
	}
	if ann.PasswordHash != "hashed:hunter2" || ann.Address != "1 Main St" {
		t.Fatalf("unexpected account %+v", ann)
	}

	again, err := Apply(ctx, store, prefixHasher{}, fixture, nil)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if !again.Skipped {
		t.Fatalf("expected second apply to be skipped, got %+v", again)
	}
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	fixture, err := Load(strings.NewReader(sampleFixture))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	boom := errors.New("boom")
	if _, err := Apply(ctx, store, prefixHasher{err: boom}, fixture, nil); !errors.Is(err, boom) {
		t.Fatalf("expected hasher error, got %v", err)
	}
	categories, err := store.Categories().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(categories) != 0 {
		t.Fatalf("expected rollback to remove categories, got %+v", categories)
	}
}
