package tally

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Re-exported so callers building commands rarely need the types and id
// packages directly.

// Money is re-exported from types package.
type Money = types.Money

// ID is the identifier type for all Tally entities.
type ID = id.ID

// Money constructors.
var (
	USD  = types.USD
	EUR  = types.EUR
	INR  = types.INR
	Zero = types.Zero
	Sum  = types.Sum
)

// ParseID parses any Tally TypeID string.
var ParseID = id.Parse
