// Package models holds the gorm persistence models and their conversion to
// and from the invoicing domain.
package models
