package pool

import (
	"errors"

	"github.com/memepool/pool-engine/internal/guard"
	"github.com/memepool/pool-engine/internal/params"
	"github.com/memepool/pool-engine/internal/store"
)

// Authorization failures.
var (
	ErrNotWhitelisted = errors.New("pool: caller not whitelisted")
	ErrNotCreator     = errors.New("pool: caller is not the creator")
	ErrNotParticipant = errors.New("pool: caller is not a participant")
	ErrNotExecutor    = errors.New("pool: caller is not the executor")
)

// Temporal and one-way-flag failures.
var (
	ErrTooEarly         = errors.New("pool: too early")
	ErrTooLate          = errors.New("pool: too late")
	ErrAlreadyJoined    = errors.New("pool: already joined")
	ErrAlreadyExecuted  = errors.New("pool: swaps already executed")
	ErrNotExecuted      = errors.New("pool: swaps not executed")
	ErrAlreadyDeclared  = errors.New("pool: winner already declared")
	ErrNotDeclared      = errors.New("pool: winner not declared")
	ErrCancelled        = errors.New("pool: pool cancelled")
	ErrAlreadyClaimed   = errors.New("pool: already claimed")
	ErrRefundsStarted   = errors.New("pool: deposits already returned")
	ErrNoParticipants   = errors.New("pool: no participants")
	ErrIllegalPhaseMove = errors.New("pool: illegal phase transition")
)

// Value failures.
var (
	ErrWrongAmount = errors.New("pool: incorrect deposit amount")
)

// External dependency failures.
var (
	ErrConversionFailed = errors.New("pool: batch conversion failed")
	ErrTransferFailed   = errors.New("pool: transfer failed")
	ErrPriceUnavailable = errors.New("pool: price unavailable")
	ErrSeedUnavailable  = errors.New("pool: randomness seed unavailable")
)

// Category groups errors the way callers react to them.
type Category int

const (
	CategoryInternal Category = iota
	CategoryNotFound
	CategoryAuthorization
	CategoryTemporal
	CategoryValue
	CategoryExternal
)

// Classify reports which category err belongs to.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryInternal
	case errors.Is(err, store.ErrPoolNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrNotWhitelisted),
		errors.Is(err, ErrNotCreator),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotExecutor):
		return CategoryAuthorization
	case errors.Is(err, ErrTooEarly),
		errors.Is(err, ErrTooLate),
		errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrAlreadyExecuted),
		errors.Is(err, ErrNotExecuted),
		errors.Is(err, ErrAlreadyDeclared),
		errors.Is(err, ErrNotDeclared),
		errors.Is(err, ErrCancelled),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrRefundsStarted),
		errors.Is(err, ErrNoParticipants),
		errors.Is(err, guard.ErrReentrant):
		return CategoryTemporal
	case errors.Is(err, ErrWrongAmount),
		errors.Is(err, params.ErrInvalidAddress),
		errors.Is(err, params.ErrEmptyName),
		errors.Is(err, params.ErrEmptyWhitelist),
		errors.Is(err, params.ErrDuplicateWhitelist),
		errors.Is(err, params.ErrInsufficientAssets),
		errors.Is(err, params.ErrLengthMismatch),
		errors.Is(err, params.ErrZeroEntryAmount),
		errors.Is(err, params.ErrSlippageRange),
		errors.Is(err, params.ErrDeadlineOrder),
		errors.Is(err, params.ErrDeadlinePassed),
		errors.Is(err, params.ErrDeadlineTooFar):
		return CategoryValue
	case errors.Is(err, ErrConversionFailed),
		errors.Is(err, ErrTransferFailed),
		errors.Is(err, ErrPriceUnavailable),
		errors.Is(err, ErrSeedUnavailable):
		return CategoryExternal
	}
	return CategoryInternal
}
