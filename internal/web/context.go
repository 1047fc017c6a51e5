package web

import (
	"net/http"
	"strconv"
	"strings"
)

// OperatorHeader carries the id of the user an import runs for. Creates are
// owned by and assigned to this operator.
const OperatorHeader = "X-Operator-ID"

// operatorID reads the operator from the request headers.
func operatorID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(OperatorHeader))
	if raw == "" {
		return 0, badRequest("missing %s header", OperatorHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s header %q", OperatorHeader, raw)
	}
	return id, nil
}
