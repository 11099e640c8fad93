package operations

import (
	"net/http"
	"time"

	"github.com/kilianp07/ocppfleet/core/oplog"
)

// NewLogHandler returns an HTTP handler exposing the operation log via
// GET /api/operations/logs. Unparsable start or end values are ignored.
func NewLogHandler(store oplog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := oplog.Query{
			ChargeBoxID: r.URL.Query().Get("charge_box_id"),
			Action:      r.URL.Query().Get("action"),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			replyError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []oplog.Record{}
		}
		replyJSON(w, http.StatusOK, records)
	})
}
