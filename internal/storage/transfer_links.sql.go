package storage

import "context"

const createTransferLink = `INSERT INTO transfer_links (id, source_tx_id, destination_tx_id, created_at)
VALUES (?, ?, ?, ?)`

type CreateTransferLinkParams struct {
	ID              string
	SourceTxID      int64
	DestinationTxID int64
	CreatedAt       int64
}

func (q *Queries) CreateTransferLink(ctx context.Context, arg CreateTransferLinkParams) error {
	_, err := q.db.ExecContext(ctx, createTransferLink, arg.ID, arg.SourceTxID, arg.DestinationTxID, arg.CreatedAt)
	return err
}

const getTransferLink = `SELECT id, source_tx_id, destination_tx_id, created_at FROM transfer_links WHERE id = ?`

func (q *Queries) GetTransferLink(ctx context.Context, id string) (TransferLink, error) {
	var i TransferLink
	err := q.db.QueryRowContext(ctx, getTransferLink, id).Scan(&i.ID, &i.SourceTxID, &i.DestinationTxID, &i.CreatedAt)
	return i, err
}

const deleteTransferLink = `DELETE FROM transfer_links WHERE id = ?`

func (q *Queries) DeleteTransferLink(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransferLink, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
