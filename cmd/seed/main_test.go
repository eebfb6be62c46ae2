package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/blacklist"
	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/users"
	"github.com/certguard/certguard/internal/verifylog"
)

func TestSeed_idempotent(t *testing.T) {
	ctx := context.Background()
	d := deps{
		ledger:    certledger.New(),
		blacklist: blacklist.NewMemoryStore(),
		users:     users.NewMemoryRepository(),
		verifylog: verifylog.NewMemoryStore(),
	}

	var out bytes.Buffer
	require.NoError(t, seed(ctx, d, &out))

	n, err := d.ledger.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(certificates)+1, n)

	report, err := d.ledger.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	ok, err := d.blacklist.IsBlacklisted(ctx, blacklisted)
	require.NoError(t, err)
	assert.True(t, ok)

	alerts, err := d.verifylog.ForgeryAlerts(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, len(alerts))
	for i, a := range alerts {
		ids[i] = a.CertificateID
	}
	assert.Contains(t, ids, certificates[0].ID)

	out.Reset()
	require.NoError(t, seed(ctx, d, &out))
	assert.Contains(t, out.String(), "(exists)")

	n, _ = d.ledger.Len(ctx)
	assert.Equal(t, len(certificates)+1, n)

	entries, err := d.blacklist.List(ctx, blacklist.StatusActive)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = users.NewService(d.users, zap.NewNop()).Login(ctx, "admin@certguard.com", "password123", users.RoleAdmin)
	assert.NoError(t, err)
}
