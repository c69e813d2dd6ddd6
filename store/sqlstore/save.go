package sqlstore

import (
	"errors"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/store"
	"gorm.io/gorm"
)

func (b *SQLBackend) SaveAcknowledgment(ack highfives.Acknowledgment) error {
	row := toRow(ack)

	return b.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&acknowledgmentRow{}).Where("id = ?", row.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrDupAcknowledgment
		}
		return tx.Create(&row).Error
	})
}

// AttachEventID is a single conditional update, so concurrent attaches can't both win.
func (b *SQLBackend) AttachEventID(id string, eventID string) error {
	res := b.DB.Model(&acknowledgmentRow{}).
		Where("id = ? AND nostr_event_id = ''", id).
		Update("nostr_event_id", eventID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var row acknowledgmentRow
	if err := b.DB.Select("id").Take(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.ErrNotFound
		}
		return err
	}
	return store.ErrAlreadyLinked
}

func toRow(ack highfives.Acknowledgment) acknowledgmentRow {
	return acknowledgmentRow{
		ID:                ack.ID,
		Recipient:         ack.Recipient,
		Reason:            ack.Reason,
		Sender:            ack.Sender,
		CreatedAt:         ack.CreatedAt.UTC(),
		NostrEventID:      ack.NostrEventID,
		ProfileName:       ack.ProfileName,
		SenderProfileName: ack.SenderProfileName,
		PaymentPayload:    ack.PaymentPayload,
	}
}

func (row acknowledgmentRow) acknowledgment() highfives.Acknowledgment {
	return highfives.Acknowledgment{
		ID:                row.ID,
		Recipient:         row.Recipient,
		Reason:            row.Reason,
		Sender:            row.Sender,
		CreatedAt:         row.CreatedAt.UTC(),
		NostrEventID:      row.NostrEventID,
		ProfileName:       row.ProfileName,
		SenderProfileName: row.SenderProfileName,
		PaymentPayload:    row.PaymentPayload,
	}
}
