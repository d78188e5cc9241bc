package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxProductNameLength = 100

// Product is a sellable item. Stock is only changed through the stock ledger
// or an explicit admin edit.
type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

type ProductParams struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	ImageURL    string
}

func NewProduct(p ProductParams, now time.Time) (*Product, error) {
	product := &Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		Price:       p.Price,
		Stock:       p.Stock,
		ImageURL:    strings.TrimSpace(p.ImageURL),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := product.validate(); err != nil {
		return nil, err
	}
	return product, nil
}

type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	ImageURL    *string
	IsActive    *bool
}

func (p *Product) Apply(upd ProductUpdate) error {
	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Stock != nil {
		p.Stock = *upd.Stock
	}
	if upd.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*upd.ImageURL)
	}
	if upd.IsActive != nil {
		p.IsActive = *upd.IsActive
	}
	return p.validate()
}

func (p *Product) validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if utf8.RuneCountInString(p.Name) > maxProductNameLength {
		return &ValidationError{Field: "name", Message: "must be at most 100 characters"}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "must not be negative"}
	}
	if p.Stock < 0 {
		return &ValidationError{Field: "stock", Message: "must not be negative"}
	}
	return nil
}

type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func NewCategory(name, description string, now time.Time) (*Category, error) {
	c := &Category{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
	}
	if c.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	return c, nil
}

type CategoryUpdate struct {
	Name        *string
	Description *string
}

func (c *Category) Apply(upd CategoryUpdate) error {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return &ValidationError{Field: "name", Message: "is required"}
		}
		c.Name = name
	}
	if upd.Description != nil {
		c.Description = strings.TrimSpace(*upd.Description)
	}
	return nil
}
