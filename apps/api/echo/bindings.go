package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range core.SplitList(val) {
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindEntity decodes a request body whose parent key depends on the level.
func bindEntity(ctx echo.Context, level curriculum.Level) (curriculum.Entity, error) {
	e := curriculum.Entity{Level: level}
	if err := json.NewDecoder(ctx.Request().Body).Decode(&e); err != nil {
		return e, echo.NewHTTPError(http.StatusBadRequest, "malformed "+level.String()).SetInternal(err)
	}
	return e, nil
}

// listParam collects a query parameter given repeatedly or as a comma separated list.
func listParam(ctx echo.Context, name string) []string {
	var vals []string
	for _, v := range ctx.QueryParams()[name] {
		vals = append(vals, core.SplitList(v)...)
	}
	return core.UniqueStrings(vals)
}
