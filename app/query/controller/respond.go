package controller

import (
	"encoding/json"
	"net/http"

	"github.com/lumen-network/balancex/pkg/ledgererr"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retriable bool   `json:"retriable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeLedgerError is the single translation from the pipeline's error
// taxonomy to HTTP. Inconsistencies surface as 503 with a retriable flag:
// the usual cause is the indexer still writing the newest block, and the
// same request will succeed once it lands.
func writeLedgerError(w http.ResponseWriter, err error) {
	code := ledgererr.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case ledgererr.CodeInvalidInput:
		status = http.StatusBadRequest
	case ledgererr.CodeStorage, ledgererr.CodeLedgerInconsistency:
		status = http.StatusServiceUnavailable
	case ledgererr.CodeOracleNotFound:
		status = http.StatusNotFound
	}

	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Code:      code.String(),
		Retriable: ledgererr.Retriable(err),
	})
}
