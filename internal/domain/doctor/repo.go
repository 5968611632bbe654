package doctor

import "context"

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id string) (*Doctor, error)
	List(ctx context.Context) ([]*Doctor, error)
	SetAvailability(ctx context.Context, id string, isAvailable bool) (*Doctor, error)
}
