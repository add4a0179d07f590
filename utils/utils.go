package utils

import (
	"crypto/md5"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

func GenUuidFromStrings(uuids ...string) string {
	if len(uuids) == 0 {
		uuids = append(uuids, "00000000-0000-0000-0000-000000000000")
	}

	// Sort the UUIDs to ensure consistent ordering
	sortedUUIDs := make([]string, len(uuids))
	copy(sortedUUIDs, uuids)
	sort.Strings(sortedUUIDs)

	// Concatenate all sorted UUIDs
	concatenatedUUIDs := strings.Join(sortedUUIDs, "")

	return uuidHash([]byte(concatenatedUUIDs))
}

func uuidHash(b []byte) string {
	h := md5.New()

	h.Write(b)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum).String()
}

// AttemptId is stable for a loan, action and the time its state was read, so
// replaying the same attempt maps onto the same record.
func AttemptId(loan, action string, readAt int64) string {
	return GenUuidFromStrings(strings.ToLower(loan), action, strconv.FormatInt(readAt, 10))
}

// ToWei truncates toward zero. Used for amounts that must never exceed what
// was computed, such as repay amounts.
func ToWei(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// ToWeiCeil rounds up. Used for deliveries and allowances that must never fall short.
func ToWeiCeil(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Ceil().BigInt()
}

func FromWei(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}
