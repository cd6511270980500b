package domain

import (
	"time"
)

type User struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Username  string
	Password  string
}

// Package — пакет кредитов. Справочные данные, после создания не меняются.
// Price хранится в минимальных денежных единицах (фэнях).
type Package struct {
	ID           int64
	Name         string
	Price        int64
	Credits      int64
	LimitPerUser int32 // 0 — без лимита покупок
}

// Order — заказ на покупку пакета. TradeRef (out_trade_no шлюза) уникален и не
// меняется после создания.
type Order struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    int64
	PackageID int64
	TradeRef  string
	Amount    int64
	Status    OrderStatusType
}

// CreditTransaction — движение кредитов юзера. Начисление (grant) всегда связано
// с заказом, списание (spend) — с использованием сервиса.
type CreditTransaction struct {
	ID        int64
	CreatedAt time.Time
	UserID    int64
	OrderID   *int64
	Amount    int64
	Direction DirectionType
}
