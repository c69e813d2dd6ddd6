package sqlstore

import (
	"errors"
	"iter"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/store"
	"gorm.io/gorm"
)

func (b *SQLBackend) GetAcknowledgment(id string) (highfives.Acknowledgment, error) {
	var row acknowledgmentRow
	if err := b.DB.Take(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return highfives.Acknowledgment{}, store.ErrNotFound
		}
		return highfives.Acknowledgment{}, err
	}
	return row.acknowledgment(), nil
}

func (b *SQLBackend) QueryAcknowledgments(filter store.Filter) iter.Seq[highfives.Acknowledgment] {
	return func(yield func(highfives.Acknowledgment) bool) {
		query := b.DB.Model(&acknowledgmentRow{})
		if filter.Recipient != "" {
			query = query.Where("recipient = ?", filter.Recipient)
		}
		if !filter.Until.IsZero() {
			query = query.Where("created_at < ?", filter.Until.UTC())
		}

		var rows []acknowledgmentRow
		if err := query.Order("created_at desc, id desc").Limit(filter.EffectiveLimit()).Find(&rows).Error; err != nil {
			b.logger().Error().Err(err).Str("recipient", filter.Recipient).Msg("failed to query acknowledgments")
			return
		}

		for _, row := range rows {
			if !yield(row.acknowledgment()) {
				return
			}
		}
	}
}
