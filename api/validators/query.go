package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
)

// ParseQueryInt reads an integer query parameter bounded to [min, max].
// An absent parameter yields def.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}

	details := map[string]any{"field": key, "value": raw}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter must be an integer").WithDetails(details)
	}
	if n < min || n > max {
		details["min"], details["max"] = min, max
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(details)
	}
	return n, nil
}
