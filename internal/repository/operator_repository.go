package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/store"
	"github.com/sirupsen/logrus"
)

const operatorsCollection = "operators"

// OperatorRepository handles storage of console operators.
type OperatorRepository struct {
	store store.DocumentStore
}

// NewOperatorRepository creates a new instance of OperatorRepository.
func NewOperatorRepository(st store.DocumentStore) *OperatorRepository {
	return &OperatorRepository{store: st}
}

// CreateOperator inserts a new operator.
func (r *OperatorRepository) CreateOperator(ctx context.Context, op *models.Operator) (*models.Operator, error) {
	op.CreatedAt = time.Now()
	data, err := store.Encode(op)
	if err != nil {
		return nil, err
	}
	id, err := r.store.InsertDocument(ctx, operatorsCollection, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert operator")
		return nil, fmt.Errorf("failed to insert operator: %w", err)
	}
	op.ID = id

	logrus.WithField("operatorID", id).Info("Operator inserted successfully")
	return op, nil
}

// GetOperatorByID retrieves an operator by id.
func (r *OperatorRepository) GetOperatorByID(ctx context.Context, id string) (*models.Operator, error) {
	doc, err := r.store.GetDocument(ctx, operatorsCollection, id)
	if err != nil {
		return nil, err
	}
	var op models.Operator
	if err := store.Decode(*doc, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// GetOperatorByEmail retrieves an operator by email.
func (r *OperatorRepository) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	docs, err := r.store.Query(ctx, store.Query{
		Collection: operatorsCollection,
		Where:      []store.Condition{store.Where("email", store.OpEq, email)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find operator by email: %w", err)
	}
	if len(docs) == 0 {
		logrus.WithField("email", email).Warn("Failed to find operator by email")
		return nil, fmt.Errorf("operator %s: %w", email, store.ErrNotFound)
	}
	var op models.Operator
	if err := store.Decode(docs[0], &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// UpdateLastActive stamps the operator's last activity time.
func (r *OperatorRepository) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	return r.store.UpdateDocument(ctx, operatorsCollection, id, store.Set("last_active_at", at))
}

// FleetOf returns the fleet an operator belongs to. Unknown operators have no fleet.
func (r *OperatorRepository) FleetOf(ctx context.Context, operatorID string) (string, error) {
	op, err := r.GetOperatorByID(ctx, operatorID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return op.FleetID, nil
}
