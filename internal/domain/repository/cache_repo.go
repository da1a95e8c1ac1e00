package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с кешем:
// JSON-значения с TTL для кеша перестановок и SetNX/Delete для
// распределенного замка цикла пополнения
type CacheRepository interface {
	Delete(key string) error
	SetJSON(key string, value interface{}, expiration time.Duration) error
	GetJSON(key string, dest interface{}) error
	SetNX(key string, value interface{}, expiration time.Duration) (bool, error)
}
