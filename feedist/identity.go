package feedist

import (
	"github.com/shopspring/decimal"

	"github.com/meridianchain/statecore/internal/xerrors"
	"github.com/meridianchain/statecore/store"
	"github.com/meridianchain/statecore/types"
)

// decimalToUint64 floors share to an integer credit count, erroring if the
// floored value is negative or would not fit in a uint64. This is the one
// place decimal fractions become integer credits: always floor, never
// round.
func decimalToUint64(share decimal.Decimal) (uint64, error) {
	floored := share.Floor()
	if floored.IsNegative() {
		return 0, xerrors.ErrOverflow
	}
	asBig := floored.BigInt()
	if asBig.Sign() < 0 || asBig.BitLen() > 64 {
		return 0, xerrors.ErrOverflow
	}
	return asBig.Uint64(), nil
}

// CreditIdentity floors share to credits and stages a balance increment for
// id against identities, the shared helper both the per-share and the
// proposer's-own-cut payout paths in DistributeFromUnpaidPools call. The
// underlying fetch runs even for a zero reward, so a missing identity
// surfaces as ErrPathKeyNotFound regardless of the amount.
func CreditIdentity(b *store.Batch, tx *store.Tx, identities IdentityStore, id types.Identifier, share decimal.Decimal) error {
	amount, err := decimalToUint64(share)
	if err != nil {
		return err
	}
	return identities.CreditBalance(b, tx, id, amount)
}
