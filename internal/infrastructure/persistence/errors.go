package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clinic/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps storage errors onto domain errors. entity and id only
// feed the message.
func translateError(err error, entity string, id any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NewNotFoundError(entity, id)
	case isDuplicateKeyError(err):
		return shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("%s %v already exists", entity, id))
	default:
		return fmt.Errorf("%s storage: %w", strings.ToLower(entity), err)
	}
}

// isDuplicateKeyError recognises unique violations. TranslateError covers
// postgres; the string checks cover drivers without a translator.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// optimisticLockResult turns a versioned update result into the domain outcome
func optimisticLockResult(result *gorm.DB, entity string, id any) error {
	if result.Error != nil {
		return translateError(result.Error, entity, id)
	}
	if result.RowsAffected == 0 {
		return shared.NewConcurrencyConflictError(entity)
	}
	return nil
}
