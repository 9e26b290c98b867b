package model

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// int64に収まらない金額・数量
var ErrAmountOutOfRange = errors.New("amount out of range")

var (
	maxAmount = decimal.NewFromInt(math.MaxInt64)
	minAmount = decimal.NewFromInt(math.MinInt64)
)

// a*b（桁あふれはErrAmountOutOfRange）
func CheckedMul(a, b int64) (int64, error) {
	return ToAmount(decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)))
}

// 合計（途中で桁あふれしたらErrAmountOutOfRange）
func CheckedSum(vs ...int64) (int64, error) {
	sum := decimal.Zero
	for _, v := range vs {
		sum = sum.Add(decimal.NewFromInt(v))
	}
	return ToAmount(sum)
}

// 整数のdecimalをint64へ（範囲外はErrAmountOutOfRange）
func ToAmount(d decimal.Decimal) (int64, error) {
	if d.GreaterThan(maxAmount) || d.LessThan(minAmount) {
		return 0, ErrAmountOutOfRange
	}
	return d.IntPart(), nil
}
