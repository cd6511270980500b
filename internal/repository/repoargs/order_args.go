package repoargs

type CreateOrder struct {
	UserID    int64
	PackageID int64
	TradeRef  string
	Amount    int64
}
