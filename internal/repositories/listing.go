package repositories

import (
	"cmp"
	"slices"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/textutil"
)

// MatchItem reports whether item satisfies every criterion set on filter.
func MatchItem(item domain.Item, filter domain.ItemFilter) bool {
	if filter.CategoryID != nil && item.CategoryID != *filter.CategoryID {
		return false
	}
	if filter.NameFragment != "" && !textutil.ContainsFold(item.Name, filter.NameFragment) {
		return false
	}
	if filter.Price.From != nil && item.Price < *filter.Price.From {
		return false
	}
	if filter.Price.To != nil && item.Price > *filter.Price.To {
		return false
	}
	if filter.OutOfStock && item.Quantity > 0 {
		return false
	}
	return true
}

// SortItems orders items in place by the requested field, breaking ties by id.
func SortItems(items []domain.Item, by domain.ItemSort, order domain.SortOrder) {
	key := func(a, b domain.Item) int {
		switch by {
		case domain.ItemSortName:
			return cmp.Compare(textutil.FoldKey(a.Name), textutil.FoldKey(b.Name))
		case domain.ItemSortPrice:
			return cmp.Compare(a.Price, b.Price)
		case domain.ItemSortQuantity:
			return cmp.Compare(a.Quantity, b.Quantity)
		default:
			return 0
		}
	}
	slices.SortStableFunc(items, func(a, b domain.Item) int {
		c := key(a, b)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if order == domain.SortDesc {
			return -c
		}
		return c
	})
}

// CompareOrdersNewestFirst orders by creation time descending, then by id descending.
func CompareOrdersNewestFirst(a, b domain.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
