package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

type counterIDs struct{ n int }

func (c *counterIDs) NewID() (string, error) {
	c.n++
	return fmt.Sprintf("id-%d", c.n), nil
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestEditalStoreUpsertIsIdempotentOnKey(t *testing.T) {
	t.Parallel()

	store := NewEditalStore(&counterIDs{}, &stepClock{t: time.Unix(0, 0).UTC()})
	rec := edital.Record{Institution: "ENARE", Specialty: "Radiologia", Projected: true}

	first, err := store.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, edital.OpInserted, first.Op)

	rec.Institution = " ENARE "
	rec.Link = "https://example.com"
	second, err := store.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, edital.OpUpdated, second.Op)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, store.Len())

	row, ok := store.Get(edital.NaturalKey{Institution: "ENARE", Specialty: "Radiologia"})
	require.True(t, ok)
	require.Equal(t, "https://example.com", row.Record.Link)
	require.Equal(t, "ENARE", row.Record.Institution)
	require.Equal(t, time.Unix(2, 0).UTC(), row.UpdatedAt)
}

func TestEditalStoreDistinctKeys(t *testing.T) {
	t.Parallel()

	store := NewEditalStore(&counterIDs{}, &stepClock{})
	_, err := store.Upsert(context.Background(), edital.Record{Institution: "ENARE", Specialty: "Radiologia"})
	require.NoError(t, err)
	res, err := store.Upsert(context.Background(), edital.Record{Institution: "ENARE", Specialty: "Pediatria"})
	require.NoError(t, err)
	require.Equal(t, "id-2", res.ID)
	require.Equal(t, 2, store.Len())
}

func TestEditalStoreRejectsBlankKey(t *testing.T) {
	t.Parallel()

	store := NewEditalStore(&counterIDs{}, &stepClock{})
	_, err := store.Upsert(context.Background(), edital.Record{Specialty: "Radiologia"})
	var storeErr *edital.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, 0, store.Len())
}
