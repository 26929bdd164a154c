package usecase

import "time"

// IDGenerator は注文番号・SKU のランダム部分の元
type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}
