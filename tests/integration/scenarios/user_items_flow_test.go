package scenarios

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vaheed/fresco/pkg/client"
	"github.com/vaheed/fresco/tests/integration/setup"
)

func TestUserItemsFlow(t *testing.T) {
	env := setup.SuiteEnvironment()
	if env == nil {
		t.Skip("suite environment unavailable")
	}
	ctx := context.Background()
	c := env.Client()

	if n, err := c.UpsertItems(ctx, []client.ItemUpsert{
		{ExternalID: "ca11", Name: "Canyon", Genres: []string{"games"}},
		{ExternalID: "ca12", Name: "Cobalt"},
	}); err != nil || n != 2 {
		t.Fatalf("upsert items: %v %d", err, n)
	}

	user := "cafe01"
	entry, err := c.AddUserItem(ctx, user, "ca11", time.Time{})
	if err != nil {
		t.Fatalf("add ca11: %v", err)
	}
	if entry.AcquiredAt.IsZero() {
		t.Fatal("server did not stamp the acquisition date")
	}
	if _, err := c.AddUserItem(ctx, user, "ca12", time.Date(2014, 1, 2, 15, 4, 5, 0, time.UTC)); err != nil {
		t.Fatalf("add ca12: %v", err)
	}

	owned, err := c.UserItems(ctx, user)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	active := map[string]bool{}
	for _, e := range owned {
		active[e.ItemID] = true
	}
	if len(owned) != 2 || !active["ca11"] || !active["ca12"] {
		t.Fatalf("unexpected inventory: %+v", owned)
	}

	if err := c.DropUserItem(ctx, user, "ca11"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	owned, err = c.UserItems(ctx, user)
	if err != nil || len(owned) != 1 || owned[0].ItemID != "ca12" {
		t.Fatalf("inventory after drop: %v %+v", err, owned)
	}

	var apiErr *client.APIError
	err = c.DropUserItem(ctx, user, "ca13")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected 404 dropping unknown entry, got %v", err)
	}

	// re-acquiring a dropped item reactivates the row
	if _, err := c.AddUserItem(ctx, user, "ca11", time.Now().UTC()); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	owned, err = c.UserItems(ctx, user)
	if err != nil || len(owned) != 2 {
		t.Fatalf("inventory after re-add: %v %+v", err, owned)
	}
}
