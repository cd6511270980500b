package domain

type OrderStatusType string

// Статусы заказа. PENDING — единственный нетерминальный статус: допустимы только
// переходы PENDING→PAID и PENDING→FAILED/EXPIRED, причем PAID выставляется
// ровно один раз.
const (
	OrderStatusPending OrderStatusType = "PENDING"
	OrderStatusPaid    OrderStatusType = "PAID"
	OrderStatusFailed  OrderStatusType = "FAILED"
	OrderStatusExpired OrderStatusType = "EXPIRED"
)

// Terminal сообщает, является ли статус терминальным.
func (s OrderStatusType) Terminal() bool {
	return s != OrderStatusPending
}

type DirectionType string

const (
	DirectionGrant DirectionType = "grant"
	DirectionSpend DirectionType = "spend"
)
