package synth

import (
	"context"
	"fmt"

	"vspcbal/internal/integrations"
)

// Source generates a county on Load.
type Source struct {
	Config Config
}

func (s Source) Name() string {
	return fmt.Sprintf("synthetic:%d units/%d centers/seed %d", s.Config.Units, s.Config.Centers, s.Config.Seed)
}

func (s Source) Load(ctx context.Context) (integrations.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return integrations.Dataset{}, err
	}
	c := Generate(s.Config)
	return integrations.Dataset{Units: c.Units, Centers: c.Centers}, nil
}
