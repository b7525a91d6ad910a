package repository

import (
	"context"
	"strings"

	customerdomain "github.com/smallbiznis/vendora/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() customerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *customerdomain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, email, role, created_at) VALUES (?, ?, ?, ?)`,
		customer.ID,
		strings.ToLower(strings.TrimSpace(customer.Email)),
		customer.Role,
		customer.CreatedAt,
	).Error
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*customerdomain.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}

	var customer customerdomain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, role, created_at FROM customers WHERE email = ? LIMIT 1`,
		email,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]customerdomain.Customer, error) {
	var customers []customerdomain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, role, created_at FROM customers ORDER BY created_at ASC`,
	).Scan(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}
