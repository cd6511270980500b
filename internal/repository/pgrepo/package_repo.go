package pgrepo

import (
	"context"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/pkg/uow"
)

const (
	packagesFindByIDQuery = `
		SELECT id, name, price, credits, limit_per_user
		FROM packages
		WHERE id = $1`

	packagesGetAllQuery = `
		SELECT id, name, price, credits, limit_per_user
		FROM packages
		ORDER BY price`
)

// PackageRepository работает со справочником пакетов. Пакеты заводятся
// миграциями и в рантайме не меняются.
type PackageRepository struct {
	conn uow.DBTX
}

func NewPackageRepository(conn uow.DBTX) *PackageRepository {
	return &PackageRepository{conn: conn}
}

func (p *PackageRepository) FindByID(ctx context.Context, id int64) (*domain.Package, error) {
	var pkg domain.Package
	err := p.conn.QueryRow(ctx, packagesFindByIDQuery, id).
		Scan(&pkg.ID, &pkg.Name, &pkg.Price, &pkg.Credits, &pkg.LimitPerUser)
	if err != nil {
		return nil, convertErr(err, "finding package by id `%d`", id)
	}
	return &pkg, nil
}

func (p *PackageRepository) GetAll(ctx context.Context) ([]domain.Package, error) {
	rows, err := p.conn.Query(ctx, packagesGetAllQuery)
	if err != nil {
		return nil, convertErr(err, "getting all packages")
	}
	defer rows.Close()

	var packages []domain.Package
	for rows.Next() {
		var pkg domain.Package
		if scanErr := rows.Scan(&pkg.ID, &pkg.Name, &pkg.Price, &pkg.Credits, &pkg.LimitPerUser); scanErr != nil {
			return nil, convertErr(scanErr, "scanning package")
		}
		packages = append(packages, pkg)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "iterating packages")
	}
	return packages, nil
}
