package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 条件付き更新が0件（競合・上限到達など）
	ErrConflict = errors.New("conflict")

	// 在庫が下限を割る更新
	ErrFloorViolation = errors.New("stock floor violation")

	// 一意制約違反
	ErrDuplicate = errors.New("duplicate")
)
