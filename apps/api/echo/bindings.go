package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-materials/core"
)

const orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `?ordering=-created_at,status`; only allowed fields are accepted.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) error {
	val := strings.TrimSpace(ctx.QueryParam(orderingParam))
	if val == "" {
		return nil
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		allowedSet[f] = true
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !allowedSet[field] {
			return core.NewFieldError(orderingParam, "cannot order by "+field)
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return nil
}
