package docstore

import (
	"fmt"

	"storefront/internal/models"
)

// StatusOf extracts the status carried by a partial update
func StatusOf(fields Fields) (models.OrderStatus, error) {
	raw, ok := fields[StatusField]
	if !ok {
		return 0, fmt.Errorf("%w: update carries no %s field", models.ErrInvalidStatus, StatusField)
	}

	switch v := raw.(type) {
	case models.OrderStatus:
		if !v.Valid() {
			return 0, fmt.Errorf("%w: %d", models.ErrInvalidStatus, int(v))
		}
		return v, nil
	case string:
		return models.ParseOrderStatus(v)
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", models.ErrInvalidStatus, raw)
	}
}

// ApplyFields writes a partial update into order. Status is the only
// mutable field and it may not move backwards.
func ApplyFields(order *models.Order, fields Fields) error {
	for name := range fields {
		if name != StatusField {
			return fmt.Errorf("field %q is read-only", name)
		}
	}

	status, err := StatusOf(fields)
	if err != nil {
		return err
	}
	if status < order.Status {
		return fmt.Errorf("%w: %s cannot follow %s", models.ErrInvalidStatus, status, order.Status)
	}

	order.Status = status
	return nil
}
