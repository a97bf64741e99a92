// Пакет wal — файловый журнал загрузок (write-ahead log).
// Закрывает окно между сохранением файла изображения и вставкой записи:
// если процесс упадёт в этом окне, при старте журнал покажет, какой файл
// остался без записи. Каждая транзакция — отдельный файл {tx_id}.wal.json.
package wal

import (
	"time"
)

// OperationType — тип операции в журнале.
type OperationType string

// OpPhotoIngest — сохранение файла изображения и вставка записи о нём.
const OpPhotoIngest OperationType = "photo_ingest"

// TransactionStatus — статус транзакции.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusCommitted  TransactionStatus = "committed"
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись журнала.
type Entry struct {
	TransactionID string            `json:"transaction_id"`
	Operation     OperationType     `json:"operation"`
	Status        TransactionStatus `json:"status"`

	// PhotoID — идентификатор фотографии
	PhotoID string `json:"photo_id"`
	// Blob — имя файла изображения в хранилище (<id>.<ext>)
	Blob string `json:"blob"`

	StartedAt time.Time `json:"started_at"`
	// CompletedAt — nil, пока транзакция в статусе pending
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func walFileName(txID string) string {
	return txID + ".wal.json"
}
