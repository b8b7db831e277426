package integrations

import (
	"context"

	"vspcbal/internal/balance"
)

// Source supplies the unit and center records for a run.
type Source interface {
	Name() string
	Load(ctx context.Context) (Dataset, error)
}

// Dataset is one complete engine input.
type Dataset struct {
	Units   []balance.UnitRecord
	Centers []balance.CenterRecord
}
