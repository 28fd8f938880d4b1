package store_test

import (
	"context"
	"fmt"
	"time"

	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/pkg/types"
)

func ExampleMemory() {
	ctx := context.Background()
	m := store.NewMemory()

	_ = m.UpsertItems(ctx, []types.Item{
		{ExternalID: "404299", Name: "Twitter"},
		{ExternalID: "405092", Name: "SoundCloud"},
	})
	_ = m.UpsertUsers(ctx, []types.User{{ExternalID: "aa"}})
	_ = m.PutInventory(ctx, []types.InventoryEntry{
		{UserID: "aa", ItemID: "404299", AcquiredAt: time.Date(2014, 5, 1, 0, 0, 0, 0, time.UTC)},
	})

	inv, _ := m.ListInventory(ctx, "aa", false)
	for _, e := range inv {
		fmt.Println(e.UserID, "owns", e.ItemID)
	}
	// Output: aa owns 404299
}
