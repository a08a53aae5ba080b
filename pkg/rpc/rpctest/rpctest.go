package rpctest

import (
	"net/http/httptest"
	"strings"

	"github.com/vltest/vltest/pkg/rpc"
)

// NewRecordedOutputWriter returns an OutputWriter whose response is recorded,
// along with the recorder holding it.
func NewRecordedOutputWriter(reqID string) (*httptest.ResponseRecorder, *rpc.OutputWriter) {
	req := httptest.NewRequest("GET", "/", strings.NewReader(""))
	req.Header.Add("X-Request-ID", reqID)
	rec := httptest.NewRecorder()
	return rec, rpc.NewOutputWriter(rec, req)
}
