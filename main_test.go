package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlens/backend/internal/review"
)

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "refresh", "reindex"})
}

func TestRefreshCmd_RequiresProductID(t *testing.T) {
	assert.Error(t, refreshCmd.Args(refreshCmd, nil))
	assert.NoError(t, refreshCmd.Args(refreshCmd, []string{"prod-1"}))
	assert.Error(t, reindexCmd.Args(reindexCmd, []string{"a", "b"}))
}

func TestRefreshOptions(t *testing.T) {
	opts, err := refreshOptions(true, false, []string{"trustpilot", "amazon"})
	require.NoError(t, err)
	assert.True(t, opts.ForceRefresh)
	assert.False(t, opts.IncludeCompetitors)
	assert.Equal(t, []review.Source{review.SourceTrustpilot, review.SourceAmazon}, opts.Sources)

	_, err = refreshOptions(false, false, []string{"ebay"})
	assert.ErrorIs(t, err, review.ErrUnsupportedSource)
}
