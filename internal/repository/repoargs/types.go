package repoargs

type RepositoryName string

const (
	UserRepoName              RepositoryName = "user"
	OrderRepoName             RepositoryName = "order"
	PackageRepoName           RepositoryName = "package"
	CreditTransactionRepoName RepositoryName = "credit_transaction"
)
