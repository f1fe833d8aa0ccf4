package pool

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/codec"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/postgres"
)

func TestSQLitePoolExternalSortEquivalence(t *testing.T) {
	input := randomPostings(250, 21)
	want := sortedCopy(input)

	for _, limit := range []int64{1, 700, 1 << 30} {
		parent := t.TempDir()
		p, err := NewSQLitePool(context.Background(), testFields, Options{Limit: limit, TempDir: parent})
		require.NoError(t, err)
		for _, post := range input {
			require.NoError(t, p.AddPosting(post))
		}

		it, err := p.Drain()
		require.NoError(t, err)
		got, err := posting.Collect(it)
		require.NoError(t, err)
		assert.Equal(t, want, got, "limit %d", limit)

		entries, err := os.ReadDir(parent)
		require.NoError(t, err)
		assert.Empty(t, entries, "limit %d left scratch files", limit)
	}
}

func TestSQLitePoolAddContentAndCancel(t *testing.T) {
	parent := t.TempDir()
	p, err := NewSQLitePool(context.Background(), testFields, Options{Limit: 1, TempDir: parent})
	require.NoError(t, err)

	n, err := p.AddContent(2, "body", "green eggs and ham", codec.Context{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, StateSpilled, p.State())

	require.NoError(t, p.Cancel())
	_, err = p.Drain()
	assert.ErrorIs(t, err, apperrors.ErrPoolClosed)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestPostgresPool runs against a live database when SP_TEST_POSTGRES_DSN
// is set.
func TestPostgresPool(t *testing.T) {
	dsn := os.Getenv("SP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SP_TEST_POSTGRES_DSN not set")
	}
	client, err := postgres.Open(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer client.Close()
	db := client.DB

	input := randomPostings(120, 33)
	p, err := NewPostgresPool(context.Background(), testFields, db, Options{Limit: 256})
	require.NoError(t, err)
	for _, post := range input {
		require.NoError(t, p.AddPosting(post))
	}
	it, err := p.Drain()
	require.NoError(t, err)
	got, err := posting.Collect(it)
	require.NoError(t, err)
	assert.Equal(t, sortedCopy(input), got)

	var exists bool
	require.NoError(t, db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", p.Table(),
	).Scan(&exists))
	assert.False(t, exists)
}
