package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// Adjuster применяет корректировку склада.
type Adjuster interface {
	Adjust(ctx context.Context, adj domain.Adjustment) (domain.InventoryLevel, error)
}

// NewRestockHandler превращает сообщения о поставках в записи журнала с причиной RESTOCK.
// Доставка at-least-once: повторное сообщение с тем же reference даст повторное пополнение.
func NewRestockHandler(ledger Adjuster, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "restock-consumer")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		restock, err := ParseRestockMessage(message)
		if err != nil {
			return err
		}

		actor := "restock-consumer"
		if restock.Supplier != "" {
			actor = "supplier:" + restock.Supplier
		}
		reference := restock.Reference
		if reference == "" {
			reference = fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset)
		}

		level, err := ledger.Adjust(ctx, domain.Adjustment{
			VariantID: restock.VariantID,
			Delta:     restock.Quantity,
			Reason:    domain.InventoryReasonRestock,
			Actor:     actor,
			Reference: reference,
		})
		if err != nil {
			return fmt.Errorf("apply restock for %s: %w", restock.VariantID, err)
		}

		logger.WithFields(log.Fields{
			"variant_id": restock.VariantID,
			"delta":      restock.Quantity,
			"quantity":   level.Quantity,
			"reference":  reference,
		}).Info("restock applied")
		return nil
	}
}
