package suppliers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeName returns the duplicate key of a supplier name.
func NormalizeName(name string) string {
	key := norm.NFKC.String(name)
	key = folder.String(key)
	return strings.Join(strings.Fields(key), " ")
}

// DuplicateGroup is a set of suppliers sharing one normalized name. Keep is
// the lowest id.
type DuplicateGroup struct {
	Key     string     `json:"key"`
	Keep    Supplier   `json:"keep"`
	Dupes   []Supplier `json:"duplicates"`
	Members int        `json:"members"`
}

// DropIDs lists the ids merge removes.
func (g DuplicateGroup) DropIDs() []int64 {
	ids := make([]int64, len(g.Dupes))
	for i, s := range g.Dupes {
		ids[i] = s.ID
	}
	return ids
}

// GroupDuplicates groups suppliers by normalized name, dropping singletons.
// Groups are ordered by key.
func GroupDuplicates(all []Supplier) []DuplicateGroup {
	byKey := map[string][]Supplier{}
	for _, s := range all {
		key := NormalizeName(s.Name)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], s)
	}
	var groups []DuplicateGroup
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		slices.SortFunc(members, func(a, b Supplier) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})
		groups = append(groups, DuplicateGroup{Key: key, Keep: members[0], Dupes: members[1:], Members: len(members)})
	}
	slices.SortFunc(groups, func(a, b DuplicateGroup) int { return strings.Compare(a.Key, b.Key) })
	return groups
}

// Duplicates previews duplicate groups.
func (s *Service) Duplicates(ctx context.Context) ([]DuplicateGroup, error) {
	all, err := s.store.Names(ctx)
	if err != nil {
		return nil, err
	}
	return GroupDuplicates(all), nil
}

// MergeResult reports one merged group.
type MergeResult struct {
	Key     string           `json:"key"`
	KeptID  int64            `json:"kept_id"`
	Removed []int64          `json:"removed_ids"`
	Moved   map[string]int64 `json:"moved"`
}

// MergeDuplicates merges every group, or only the group with key when it is
// not empty. All groups merge in one transaction.
func (s *Service) MergeDuplicates(ctx context.Context, actor Actor, key string) ([]MergeResult, error) {
	key = NormalizeName(key)
	var results []MergeResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		all, err := tx.Names(ctx)
		if err != nil {
			return err
		}
		for _, g := range GroupDuplicates(all) {
			if key != "" && g.Key != key {
				continue
			}
			drop := g.DropIDs()
			moved, err := tx.Merge(ctx, g.Keep.ID, drop)
			if err != nil {
				return fmt.Errorf("merge %q: %w", g.Key, err)
			}
			if err := tx.RecordActivity(ctx, activity(actor, "supplier.merged", g.Keep.ID, map[string]any{
				"key":        g.Key,
				"merged_ids": drop,
				"moved_rows": moved,
				"kept_name":  g.Keep.Name,
			})); err != nil {
				return err
			}
			results = append(results, MergeResult{Key: g.Key, KeptID: g.Keep.ID, Removed: drop, Moved: moved})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
