package testutil

import (
	"net/http"

	"stagegate/pkg/platform/middleware/admin"
	"stagegate/pkg/platform/middleware/metadata"
)

// AsOperator adds the operator token and acting identity headers.
func AsOperator(req *http.Request, token, actor string) *http.Request {
	req.Header.Set(admin.HeaderOperatorToken, token)
	if actor != "" {
		req.Header.Set(metadata.HeaderActor, actor)
	}
	return req
}
