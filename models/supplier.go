package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
)

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Phone     string    `gorm:"size:50;default:null" json:"phone"`
	Email     string    `gorm:"size:255;default:null" json:"email"`
	Address   string    `gorm:"type:text;default:null" json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewSupplier struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	db := config.GetDB()

	if err := utils.ValidateUnique[Supplier](ctx, "name", input.Name, 0); err != nil {
		return nil, err
	}

	supplier := Supplier{
		Name:    input.Name,
		Phone:   input.Phone,
		Email:   input.Email,
		Address: input.Address,
	}
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func UpdateSupplier(ctx context.Context, id int, input *NewSupplier) (*Supplier, error) {
	db := config.GetDB()

	supplier, err := GetSupplier(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Supplier](ctx, "name", input.Name, id); err != nil {
		return nil, err
	}

	supplier.Name = input.Name
	supplier.Phone = input.Phone
	supplier.Email = input.Email
	supplier.Address = input.Address

	if err := db.WithContext(ctx).Model(supplier).
		Select("Name", "Phone", "Email", "Address").
		Updates(supplier).Error; err != nil {
		return nil, err
	}
	return supplier, nil
}

func DeleteSupplier(ctx context.Context, id int) error {
	db := config.GetDB()

	if err := utils.ValidateResourceId[Supplier](ctx, id); err != nil {
		return &NotFoundError{Kind: "supplier", Key: itoa(id)}
	}

	count, err := utils.ResourceCountWhere[PurchaseOrder](ctx, "supplier_id = ?", id)
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("supplier has purchase orders and cannot be deleted")
	}

	return db.WithContext(ctx).Delete(&Supplier{}, id).Error
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	db := config.GetDB()

	var supplier Supplier
	if err := db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "supplier", Key: itoa(id)}
		}
		return nil, err
	}
	return &supplier, nil
}

func GetSuppliers(ctx context.Context, keyword string) ([]*Supplier, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&Supplier{})
	if keyword != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+keyword+"%")
	}

	var suppliers []*Supplier
	if err := dbCtx.Order("name ASC").Limit(config.SearchLimit).Find(&suppliers).Error; err != nil {
		return nil, err
	}
	return suppliers, nil
}
