package limiter_test

import (
	"context"
	"fmt"

	"github.com/tenantgate/tenantgate/pkg/limiter"
)

type fixedQuotas struct{}

func (fixedQuotas) ActiveQuotas(ctx context.Context, tenantID string) ([]limiter.Quota, error) {
	return []limiter.Quota{{
		ConfigID:      "cfg1",
		TenantID:      tenantID,
		MaxRequests:   2,
		WindowSeconds: 60,
	}}, nil
}

func ExampleEngine_Check() {
	engine := limiter.NewEngine(
		limiter.NewResolver(fixedQuotas{}),
		limiter.NewMemoryCounterStore(),
	)
	sub := limiter.Subject{TenantID: "tenant-1", Resource: "api/v1/users"}

	for i := 0; i < 3; i++ {
		res, err := engine.Check(context.Background(), sub)
		if err != nil {
			panic(err)
		}
		fmt.Println(res.Allowed, res.Remaining)
	}
	// Output:
	// true 1
	// true 0
	// false 0
}
