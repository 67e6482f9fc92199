package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/midtrans"
)

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   models.Role
}

// Authorizer answers role permission questions
type Authorizer interface {
	Allow(ctx context.Context, role, permission string) (bool, error)
}

// PaymentGateway is the part of the Midtrans client the services use
type PaymentGateway interface {
	IsConfigured() bool
	CreateTransaction(ctx context.Context, req *midtrans.SnapRequest) (*midtrans.SnapResponse, error)
	GetStatus(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error)
	Cancel(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error)
	VerifySignature(n *midtrans.Notification) bool
	ParseNotification(body []byte) (*midtrans.Notification, error)
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time
